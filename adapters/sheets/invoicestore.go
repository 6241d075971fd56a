package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/pkg/cache"
	"github.com/artpar/carebill/ports"
)

// InvoiceStore implements ports.InvoiceStore over the invoice tab.
//
// Sheets has no uniqueness constraint; callers serialise writes per client
// through a ports.Locker.
//
// List always reads the tab. ListForClient may answer from the last read
// for up to the recent TTL, see CacheRecent.
type InvoiceStore struct {
	book *Book
	tab  string
	cols InvoiceColumns
	loc  *time.Location

	recent    cache.Cache[string, []billing.Invoice]
	recentTTL time.Duration
}

// NewInvoiceStore creates an invoice store. Timestamps in the tab carry no
// zone and are read in loc (UTC when nil).
func NewInvoiceStore(book *Book, tab string, cols InvoiceColumns, loc *time.Location) *InvoiceStore {
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceStore{
		book:   book,
		tab:    tab,
		cols:   cols.WithDefaults(DefaultInvoiceColumns),
		loc:    loc,
		recent: cache.NoopCache[string, []billing.Invoice]{},
	}
}

// CacheRecent lets ListForClient reuse a tab read for ttl. Writes through
// this store are added to the cached copy, so only rows written elsewhere
// can be missing from it.
func (s *InvoiceStore) CacheRecent(c cache.Cache[string, []billing.Invoice], ttl time.Duration) *InvoiceStore {
	if c == nil || ttl <= 0 {
		return s
	}
	s.recent = c
	s.recentTTL = ttl
	return s
}

// Append writes inv as a new row laid out by the tab's header.
func (s *InvoiceStore) Append(ctx context.Context, inv billing.Invoice) error {
	header, err := s.book.header(ctx, s.tab)
	if err != nil {
		return err
	}
	idx := indexHeader(header)
	if _, ok := idx.find(s.cols.Reference); !ok {
		return fmt.Errorf("tab %s: missing column %q", s.tab, s.cols.Reference)
	}

	row := make([]any, len(header))
	for i := range row {
		row[i] = ""
	}
	set := func(name string, v any) {
		if i, ok := idx.find(name); ok {
			row[i] = v
		}
	}
	set(s.cols.Reference, inv.Reference)
	set(s.cols.Date, billing.FormatDateTime(inv.IssuedAt.In(s.loc)))
	set(s.cols.Client, inv.ClientName)
	set(s.cols.Base, inv.Base.String())
	set(s.cols.Extra, inv.Extra.String())
	set(s.cols.Discount, inv.Discount.String())
	set(s.cols.Total, inv.Total.String())
	set(s.cols.Status, string(inv.Status))
	set(s.cols.ServiceType, inv.ServiceType)
	set(s.cols.Note, inv.Note)

	if err := s.book.append(ctx, s.tab, row); err != nil {
		s.recent.Delete(s.tab)
		return err
	}
	if cached, ok := s.recent.Get(s.tab); ok {
		s.recent.Set(s.tab, append(cached[:len(cached):len(cached)], inv), s.recentTTL)
	}
	return nil
}

// List reads every invoice row in sheet order. Rows without a reference are ignored.
func (s *InvoiceStore) List(ctx context.Context) ([]billing.Invoice, error) {
	invoices, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	s.recent.Set(s.tab, invoices, s.recentTTL)
	return invoices, nil
}

func (s *InvoiceStore) read(ctx context.Context) ([]billing.Invoice, error) {
	header, rows, err := s.book.table(ctx, s.tab)
	if err != nil {
		return nil, err
	}
	idx := indexHeader(header)

	invoices := make([]billing.Invoice, 0, len(rows))
	for _, row := range rows {
		ref := idx.text(row, s.cols.Reference)
		if ref == "" {
			continue
		}
		invoices = append(invoices, billing.Invoice{
			Reference:   ref,
			IssuedAt:    s.parseTimestamp(idx.text(row, s.cols.Date)),
			ClientName:  idx.text(row, s.cols.Client),
			Base:        billing.CoerceAmount(idx.cell(row, s.cols.Base)),
			Extra:       billing.CoerceAmount(idx.cell(row, s.cols.Extra)),
			Discount:    billing.CoerceAmount(idx.cell(row, s.cols.Discount)),
			Total:       billing.CoerceAmount(idx.cell(row, s.cols.Total)),
			Status:      billing.InvoiceStatus(idx.text(row, s.cols.Status)),
			ServiceType: idx.text(row, s.cols.ServiceType),
			Note:        idx.text(row, s.cols.Note),
		})
	}
	return invoices, nil
}

// ListForClient returns the client's invoices whose service type contains serviceTag.
func (s *InvoiceStore) ListForClient(ctx context.Context, clientName, serviceTag string) ([]billing.Invoice, error) {
	all, ok := s.recent.Get(s.tab)
	if !ok {
		var err error
		if all, err = s.List(ctx); err != nil {
			return nil, err
		}
	}
	var out []billing.Invoice
	for _, inv := range all {
		if inv.BelongsTo(clientName, serviceTag) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// parseTimestamp reads "DD/MM/YYYY HH:MM:SS", falling back to a bare date.
// Unparseable text yields the zero time.
func (s *InvoiceStore) parseTimestamp(text string) time.Time {
	if t, err := time.ParseInLocation(billing.DisplayDateTimeLayout, text, s.loc); err == nil {
		return t
	}
	if d, ok := billing.ParseDate(text); ok {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	}
	return time.Time{}
}

var _ ports.InvoiceStore = (*InvoiceStore)(nil)
