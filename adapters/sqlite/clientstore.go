package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
)

// dayLayout is the storage format of calendar dates.
const dayLayout = "2006-01-02"

// ClientStore implements ports.ClientStore for one billing family.
type ClientStore struct {
	db     *DB
	family string
}

// NewClientStore creates a SQLite client store scoped to family.
func NewClientStore(db *DB, family string) *ClientStore {
	return &ClientStore{db: db, family: family}
}

// Upsert inserts or replaces a client. Dates are stored as entered in
// AnchorRaw; when AnchorRaw is empty the parsed AnchorDate is used.
func (s *ClientStore) Upsert(ctx context.Context, c billing.Client) error {
	anchor := c.AnchorRaw
	if anchor == "" && !c.AnchorDate.IsZero() {
		anchor = c.AnchorDate.Format(dayLayout)
	}
	stop := ""
	if c.StopDate != nil && !c.StopDate.IsZero() {
		stop = c.StopDate.Format(dayLayout)
	}
	var last sql.NullString
	if c.LastBilled != nil && !c.LastBilled.IsZero() {
		last = sql.NullString{String: billing.DateOf(*c.LastBilled).Format(dayLayout), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (family, name, name_key, anchor_date, active, stop_date, last_billed, base, extra, discount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (family, name_key) DO UPDATE SET
			name = excluded.name,
			anchor_date = excluded.anchor_date,
			active = excluded.active,
			stop_date = excluded.stop_date,
			last_billed = excluded.last_billed,
			base = excluded.base,
			extra = excluded.extra,
			discount = excluded.discount,
			updated_at = CURRENT_TIMESTAMP
	`,
		s.family, c.Name, nameKey(c.Name), anchor, c.Active, stop, last,
		c.Base.String(), c.Extra.String(), c.Discount.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", c.Name, err)
	}
	return nil
}

// List returns every client of the family in insertion order.
func (s *ClientStore) List(ctx context.Context) ([]billing.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, anchor_date, active, stop_date, last_billed, base, extra, discount
		FROM clients
		WHERE family = ?
		ORDER BY rowid
	`, s.family)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []billing.Client
	for rows.Next() {
		var (
			c                     billing.Client
			stop                  string
			last                  sql.NullString
			base, extra, discount string
		)
		if err := rows.Scan(&c.Name, &c.AnchorRaw, &c.Active, &stop, &last, &base, &extra, &discount); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		if d, ok := billing.ParseDate(c.AnchorRaw); ok {
			c.AnchorDate = d
		}
		if d, ok := billing.ParseDate(stop); ok {
			c.StopDate = &d
		}
		if last.Valid {
			if d, ok := billing.ParseDate(last.String); ok {
				c.LastBilled = &d
			}
		}
		c.Base = billing.CoerceAmount(base)
		c.Extra = billing.CoerceAmount(extra)
		c.Discount = billing.CoerceAmount(discount)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateLastBilled sets the client's last-billed marker.
func (s *ClientStore) UpdateLastBilled(ctx context.Context, name string, date time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET last_billed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE family = ? AND name_key = ?
	`, billing.DateOf(date).Format(dayLayout), s.family, nameKey(name))
	if err != nil {
		return fmt.Errorf("update last billed for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrClientNotFound
	}
	return nil
}

var _ ports.ClientStore = (*ClientStore)(nil)
