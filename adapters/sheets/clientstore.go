package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
)

// ClientStore implements ports.ClientStore over one client tab.
//
// A tab without a status column treats every row as active.
type ClientStore struct {
	book *Book
	tab  string
	cols ClientColumns
}

// NewClientStore creates a client store reading tab with the given header names.
func NewClientStore(book *Book, tab string, cols ClientColumns) *ClientStore {
	return &ClientStore{book: book, tab: tab, cols: cols.WithDefaults(HomeCareColumns)}
}

// List returns every client row. Rows with a blank name are ignored.
func (s *ClientStore) List(ctx context.Context) ([]billing.Client, error) {
	header, rows, err := s.book.table(ctx, s.tab)
	if err != nil {
		return nil, err
	}
	idx := indexHeader(header)
	if _, ok := idx.find(s.cols.Name); !ok {
		return nil, fmt.Errorf("tab %s: missing column %q", s.tab, s.cols.Name)
	}
	_, hasStatus := idx.find(s.cols.Status)

	clients := make([]billing.Client, 0, len(rows))
	for _, row := range rows {
		name := idx.text(row, s.cols.Name)
		if name == "" {
			continue
		}
		c := billing.Client{
			Name:      name,
			AnchorRaw: idx.text(row, s.cols.Anchor),
			Active:    !hasStatus || IsActiveStatus(idx.text(row, s.cols.Status)),
			Base:      billing.CoerceAmount(idx.cell(row, s.cols.Base)),
			Extra:     billing.CoerceAmount(idx.cell(row, s.cols.Extra)),
			Discount:  billing.CoerceAmount(idx.cell(row, s.cols.Discount)),
		}
		if d, ok := billing.ParseDate(c.AnchorRaw); ok {
			c.AnchorDate = d
		}
		if d, ok := billing.ParseDate(idx.text(row, s.cols.StopDate)); ok {
			c.StopDate = &d
		}
		if d, ok := billing.ParseDate(idx.text(row, s.cols.LastBilled)); ok {
			c.LastBilled = &d
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// UpdateLastBilled writes date into the first row whose name matches.
func (s *ClientStore) UpdateLastBilled(ctx context.Context, name string, date time.Time) error {
	header, rows, err := s.book.table(ctx, s.tab)
	if err != nil {
		return err
	}
	idx := indexHeader(header)
	col, ok := idx.find(s.cols.LastBilled)
	if !ok {
		return fmt.Errorf("tab %s: missing column %q", s.tab, s.cols.LastBilled)
	}

	key := strings.ToLower(strings.TrimSpace(name))
	for i, row := range rows {
		if strings.ToLower(idx.text(row, s.cols.Name)) != key {
			continue
		}
		// +2: one for the header, one for 1-based row numbers.
		return s.book.updateCell(ctx, s.tab, col, i+2, billing.FormatDate(billing.DateOf(date)))
	}
	return ports.ErrClientNotFound
}

var _ ports.ClientStore = (*ClientStore)(nil)
