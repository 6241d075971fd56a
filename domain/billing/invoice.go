// Package billing provides client, invoice and billing-cycle value types and pure functions.
package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the outcome recorded on an invoice or returned by generation.
type InvoiceStatus string

const (
	// StatusInvoiced is written on every newly created invoice row.
	StatusInvoiced InvoiceStatus = "Invoiced"
	// StatusDuplicatePrevented is returned (never stored) when the client was already billed today.
	StatusDuplicatePrevented InvoiceStatus = "duplicate_prevented"
)

// ReferenceDigits is the zero-padding width of sequential invoice references.
const ReferenceDigits = 4

// Invoice is an immutable billing event for one client on one day (value type).
type Invoice struct {
	Reference   string
	IssuedAt    time.Time
	ClientName  string
	Base        decimal.Decimal
	Extra       decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	Status      InvoiceStatus
	ServiceType string // family tag, e.g. "Home Care"
	Note        string
}

// HistoryEntry is the summary of a past invoice as seen by the history reader.
type HistoryEntry struct {
	Reference string          `json:"reference"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Status    InvoiceStatus   `json:"status"`
}

// Entry summarises the invoice for history listings.
func (inv Invoice) Entry() HistoryEntry {
	return HistoryEntry{
		Reference: inv.Reference,
		Date:      inv.IssuedAt,
		Amount:    inv.Total,
		Status:    inv.Status,
	}
}

// BelongsTo reports whether the invoice is for the named client (case-insensitive)
// and its service type contains tag (case-insensitive substring).
func (inv Invoice) BelongsTo(clientName, tag string) bool {
	if !strings.EqualFold(strings.TrimSpace(inv.ClientName), strings.TrimSpace(clientName)) {
		return false
	}
	return strings.Contains(strings.ToLower(inv.ServiceType), strings.ToLower(tag))
}

// NextReference allocates the reference following the highest numeric suffix
// among refs that carry prefix, e.g. HC-0007 after HC-0006. Timestamp-shaped
// suffixes written by FallbackReference do not take part in the sequence.
// This is a PURE function.
func NextReference(refs []string, prefix string) string {
	head := prefix + "-"
	var highest int64
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if !strings.HasPrefix(strings.ToUpper(ref), strings.ToUpper(head)) {
			continue
		}
		suffix := ref[len(head):]
		if len(suffix) >= len(fallbackLayout) {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%0*d", head, ReferenceDigits, highest+1)
}

const fallbackLayout = "20060102150405"

// FallbackReference is used when existing references cannot be read.
func FallbackReference(prefix string, now time.Time) string {
	return prefix + "-" + now.Format(fallbackLayout)
}

// FormatAmount renders an amount with thousand separators and two decimals.
// This is a PURE function.
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	return sign + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	return groupThousands(digits[:len(digits)-3]) + "," + digits[len(digits)-3:]
}
