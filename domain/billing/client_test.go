package billing_test

import (
	"testing"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/shopspring/decimal"
)

func TestEligibility(t *testing.T) {
	today := date(2025, 2, 28)
	yesterday := date(2025, 2, 27)
	tomorrow := date(2025, 3, 1)

	active := func(mod func(*billing.Client)) billing.Client {
		c := billing.Client{
			Name:       "Asha Rao",
			AnchorRaw:  "31/01/2025",
			AnchorDate: date(2025, 1, 31),
			Active:     true,
		}
		if mod != nil {
			mod(&c)
		}
		return c
	}

	tests := []struct {
		name   string
		client billing.Client
		want   billing.SkipReason
	}{
		{"eligible", active(nil), billing.SkipNone},
		{"no anchor", active(func(c *billing.Client) { c.AnchorRaw = ""; c.AnchorDate = time.Time{} }), billing.SkipNoAnchor},
		{"bad anchor", active(func(c *billing.Client) { c.AnchorRaw = "someday"; c.AnchorDate = time.Time{} }), billing.SkipBadAnchor},
		{"inactive", active(func(c *billing.Client) { c.Active = false }), billing.SkipInactive},
		{"stopped yesterday", active(func(c *billing.Client) { c.StopDate = &yesterday }), billing.SkipStopped},
		{"stopped today", active(func(c *billing.Client) { c.StopDate = &today }), billing.SkipStopped},
		{"stops tomorrow", active(func(c *billing.Client) { c.StopDate = &tomorrow }), billing.SkipNone},
		{"anchor parsed without raw text", active(func(c *billing.Client) { c.AnchorRaw = "" }), billing.SkipNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := billing.Eligibility(tt.client, today); got != tt.want {
				t.Errorf("Eligibility() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_KeyAndTotal(t *testing.T) {
	c := billing.Client{
		Name:     "  Asha RAO ",
		Base:     decimal.NewFromInt(10000),
		Extra:    decimal.NewFromInt(2000),
		Discount: decimal.NewFromInt(500),
	}
	if c.Key() != "asha rao" {
		t.Errorf("Key() = %q", c.Key())
	}
	if !c.Total().Equal(decimal.NewFromInt(11500)) {
		t.Errorf("Total() = %s, want 11500", c.Total())
	}
}
