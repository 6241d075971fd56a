package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a service recipient under a monthly billing plan (value type).
// Store bindings map raw rows into this shape; AnchorDate is zero when
// AnchorRaw is empty or could not be parsed.
type Client struct {
	Name       string
	AnchorRaw  string
	AnchorDate time.Time
	Active     bool
	StopDate   *time.Time // service end / discharge
	LastBilled *time.Time
	Base       decimal.Decimal
	Extra      decimal.Decimal
	Discount   decimal.Decimal
}

// Key returns the identity used for locking and lookups.
func (c Client) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// Total returns the amount a cycle bills for this client.
func (c Client) Total() decimal.Decimal {
	return Total(c.Base, c.Extra, c.Discount)
}

// Stopped reports whether the client has a stop date on or before today.
func (c Client) Stopped(today time.Time) bool {
	return c.StopDate != nil && !c.StopDate.IsZero() && !DateOf(*c.StopDate).After(DateOf(today))
}

// SkipReason explains why a client was not billed.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipNoAnchor  SkipReason = "no_anchor_date"
	SkipBadAnchor SkipReason = "invalid_anchor_date"
	SkipInactive  SkipReason = "inactive"
	SkipStopped   SkipReason = "stopped"
	SkipNotDue    SkipReason = "not_due"
	SkipDuplicate SkipReason = "duplicate_prevented"
)

// Eligibility checks the static conditions for automatic billing on today,
// in order: anchor present, anchor parseable, active, not stopped.
// This is a PURE function.
func Eligibility(c Client, today time.Time) SkipReason {
	switch {
	case strings.TrimSpace(c.AnchorRaw) == "" && c.AnchorDate.IsZero():
		return SkipNoAnchor
	case c.AnchorDate.IsZero():
		return SkipBadAnchor
	case !c.Active:
		return SkipInactive
	case c.Stopped(today):
		return SkipStopped
	}
	return SkipNone
}
