package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
)

// InvoiceStore implements ports.InvoiceStore using SQLite. A unique index
// rejects a second invoice for the same client, service type and day.
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates a new SQLite invoice store.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Append stores a new invoice. It returns ports.ErrDuplicateInvoice when the
// client already has an invoice for the service type on that day.
func (s *InvoiceStore) Append(ctx context.Context, inv billing.Invoice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			reference, issued_at, invoice_day, client_name, client_key,
			base, extra, discount, total, status, service_type, service_key, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.Reference, inv.IssuedAt.Format(time.RFC3339Nano), billing.DateOf(inv.IssuedAt).Format(dayLayout),
		inv.ClientName, nameKey(inv.ClientName),
		inv.Base.String(), inv.Extra.String(), inv.Discount.String(), inv.Total.String(),
		string(inv.Status), inv.ServiceType, nameKey(inv.ServiceType), inv.Note,
	)
	if isUniqueConstraintError(err) {
		return ports.ErrDuplicateInvoice
	}
	if err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.Reference, err)
	}
	return nil
}

const invoiceColumns = `reference, issued_at, client_name, base, extra, discount, total, status, service_type, note`

// List returns every invoice in insertion order.
func (s *InvoiceStore) List(ctx context.Context) ([]billing.Invoice, error) {
	return s.query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY id`)
}

// ListForClient returns the client's invoices whose service type contains serviceTag.
func (s *InvoiceStore) ListForClient(ctx context.Context, clientName, serviceTag string) ([]billing.Invoice, error) {
	return s.query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE client_key = ? AND instr(service_key, ?) > 0
		ORDER BY id
	`, nameKey(clientName), nameKey(serviceTag))
}

func (s *InvoiceStore) query(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		var (
			inv                          billing.Invoice
			issued, status               string
			base, extra, discount, total string
		)
		if err := rows.Scan(&inv.Reference, &issued, &inv.ClientName,
			&base, &extra, &discount, &total, &status, &inv.ServiceType, &inv.Note); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.IssuedAt, err = time.Parse(time.RFC3339Nano, issued)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: bad issued_at %q: %w", inv.Reference, issued, err)
		}
		inv.Base = billing.CoerceAmount(base)
		inv.Extra = billing.CoerceAmount(extra)
		inv.Discount = billing.CoerceAmount(discount)
		inv.Total = billing.CoerceAmount(total)
		inv.Status = billing.InvoiceStatus(status)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

var _ ports.InvoiceStore = (*InvoiceStore)(nil)
