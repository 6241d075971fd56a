// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/carebill/domain/billing"
)

// ErrClientNotFound is returned when a client identity has no row in the store.
var ErrClientNotFound = errors.New("client not found")

// ErrDuplicateInvoice is returned by invoice stores that enforce one invoice per
// client, service type and calendar day.
var ErrDuplicateInvoice = errors.New("invoice already exists for this client today")

// ErrLockTimeout is returned when a per-client lock cannot be acquired before the context ends.
var ErrLockTimeout = errors.New("lock not acquired")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes and verifies secrets (trigger tokens).
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// Locker serialises work per key across concurrent billing triggers.
type Locker interface {
	// Lock blocks until the key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher publishes domain events (invoice.created) to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ClientStore exposes the clients of one billing family.
type ClientStore interface {
	// List returns every client, active or not.
	List(ctx context.Context) ([]billing.Client, error)

	// UpdateLastBilled sets the client's last-billed marker.
	UpdateLastBilled(ctx context.Context, name string, date time.Time) error
}

// InvoiceStore persists invoices. One store may be shared by several families;
// rows are told apart by their service type.
type InvoiceStore interface {
	// Append stores a new invoice.
	Append(ctx context.Context, inv billing.Invoice) error

	// List returns every stored invoice.
	List(ctx context.Context) ([]billing.Invoice, error)

	// ListForClient returns the invoices whose client name matches clientName
	// (case-insensitive) and whose service type contains serviceTag.
	ListForClient(ctx context.Context, clientName, serviceTag string) ([]billing.Invoice, error)
}

// -----------------------------------------------------------------------------
// Notification Ports
// -----------------------------------------------------------------------------

// EmailMessage is an outgoing email.
type EmailMessage struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string // optional
}

// EmailSender delivers run reports to the office.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}
