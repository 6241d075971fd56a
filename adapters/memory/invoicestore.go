package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
)

// InvoiceStore is an in-memory implementation of ports.InvoiceStore.
// Like the SQL store it refuses a second invoice for the same client,
// service type and day.
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices []billing.Invoice

	listErr    error
	appendErr  error
	clientErrs map[string]error // by lowercased client name
}

// NewInvoiceStore creates an invoice store seeded with invoices.
func NewInvoiceStore(invoices ...billing.Invoice) *InvoiceStore {
	s := &InvoiceStore{clientErrs: make(map[string]error)}
	s.invoices = append(s.invoices, invoices...)
	return s
}

// Append stores a new invoice.
func (s *InvoiceStore) Append(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendErr != nil {
		return s.appendErr
	}
	day := billing.DateOf(inv.IssuedAt)
	for _, existing := range s.invoices {
		if strings.EqualFold(existing.ServiceType, inv.ServiceType) &&
			existing.BelongsTo(inv.ClientName, inv.ServiceType) &&
			billing.DateOf(existing.IssuedAt).Equal(day) {
			return ports.ErrDuplicateInvoice
		}
	}
	s.invoices = append(s.invoices, inv)
	return nil
}

// List returns every stored invoice in insertion order.
func (s *InvoiceStore) List(ctx context.Context) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	result := make([]billing.Invoice, len(s.invoices))
	copy(result, s.invoices)
	return result, nil
}

// ListForClient returns the invoices that belong to clientName under serviceTag.
func (s *InvoiceStore) ListForClient(ctx context.Context, clientName, serviceTag string) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	if err := s.clientErrs[strings.ToLower(strings.TrimSpace(clientName))]; err != nil {
		return nil, err
	}
	var result []billing.Invoice
	for _, inv := range s.invoices {
		if inv.BelongsTo(clientName, serviceTag) {
			result = append(result, inv)
		}
	}
	return result, nil
}

// FailList makes every read return err (nil clears it).
func (s *InvoiceStore) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailAppend makes Append return err (nil clears it).
func (s *InvoiceStore) FailAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// FailClient makes ListForClient return err for one client (nil clears it).
func (s *InvoiceStore) FailClient(clientName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := strings.ToLower(strings.TrimSpace(clientName))
	if err == nil {
		delete(s.clientErrs, k)
		return
	}
	s.clientErrs[k] = err
}

var _ ports.InvoiceStore = (*InvoiceStore)(nil)
