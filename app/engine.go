// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Family describes one billing family sharing the engine: its service-type tag
// written on every invoice and its reference prefix.
type Family struct {
	Name       string // e.g. "home_care"
	ServiceTag string // e.g. "Home Care"
	Prefix     string // e.g. "HC"
}

// Recorder receives billing metrics. *metrics.Collector implements it.
type Recorder interface {
	RunCompleted(family, trigger string, d time.Duration)
	InvoiceGenerated(family string)
	DuplicatePrevented(family string)
	ClientSkipped(family, reason string)
	ClientFailed(family string)
	Forecast(family string, total float64)
}

type nopRecorder struct{}

func (nopRecorder) RunCompleted(string, string, time.Duration) {}
func (nopRecorder) InvoiceGenerated(string)                    {}
func (nopRecorder) DuplicatePrevented(string)                  {}
func (nopRecorder) ClientSkipped(string, string)               {}
func (nopRecorder) ClientFailed(string)                        {}
func (nopRecorder) Forecast(string, float64)                   {}

// nopLocker leaves duplicate protection to the read-then-write check and the store.
type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (nopPublisher) Close() error                                  { return nil }

type clockIDs struct{ clock ports.Clock }

func (g clockIDs) New() string { return "run-" + g.clock.Now().UTC().Format("20060102T150405.000000000") }

// EngineDeps are the collaborators of an Engine. Clients, Invoices and Clock
// are required; the rest default to in-process no-ops.
type EngineDeps struct {
	Clients  ports.ClientStore
	Invoices ports.InvoiceStore
	Locker   ports.Locker
	Events   ports.EventPublisher
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Metrics  Recorder
	Logger   zerolog.Logger
}

// EngineConfig contains tunables for an Engine.
type EngineConfig struct {
	MaxProjectionCycles int           // cap for future projection (default 100)
	ForecastDays        int           // preview window when none is given (default 30)
	LockTimeout         time.Duration // wait for a busy client lock (default 30s)
}

// Engine is the recurring billing engine for one family.
type Engine struct {
	family   Family
	clients  ports.ClientStore
	invoices ports.InvoiceStore
	locker   ports.Locker
	events   ports.EventPublisher
	clock    ports.Clock
	ids      ports.IDGenerator
	metrics  Recorder
	logger   zerolog.Logger
	cfg      EngineConfig
}

// NewEngine creates a billing engine for family.
func NewEngine(family Family, deps EngineDeps, cfg EngineConfig) *Engine {
	if cfg.MaxProjectionCycles <= 0 {
		cfg.MaxProjectionCycles = billing.DefaultMaxProjectionCycles
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 30
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 30 * time.Second
	}

	e := &Engine{
		family:   family,
		clients:  deps.Clients,
		invoices: deps.Invoices,
		locker:   deps.Locker,
		events:   deps.Events,
		clock:    deps.Clock,
		ids:      deps.IDs,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("service", "billing").Str("family", family.Name).Logger(),
		cfg:      cfg,
	}
	if e.locker == nil {
		e.locker = nopLocker{}
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.ids == nil {
		e.ids = clockIDs{clock: deps.Clock}
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	return e
}

// Family returns the engine's family.
func (e *Engine) Family() Family {
	return e.family
}

// History returns the client's invoices for this family, newest first.
// A store read failure is logged and yields an empty history.
func (e *Engine) History(ctx context.Context, clientName string) []billing.HistoryEntry {
	entries, err := e.history(ctx, clientName)
	if err != nil {
		e.logger.Warn().Err(err).Str("client", clientName).Msg("billing history unavailable")
		return []billing.HistoryEntry{}
	}
	return entries
}

// history is the strict variant of History used where a read error must surface.
func (e *Engine) history(ctx context.Context, clientName string) ([]billing.HistoryEntry, error) {
	invoices, err := e.invoices.ListForClient(ctx, clientName, e.family.ServiceTag)
	if err != nil {
		return nil, fmt.Errorf("read invoices for %s: %w", clientName, err)
	}
	return e.historyFrom(invoices, clientName), nil
}

func (e *Engine) historyFrom(invoices []billing.Invoice, clientName string) []billing.HistoryEntry {
	entries := make([]billing.HistoryEntry, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.BelongsTo(clientName, e.family.ServiceTag) {
			continue
		}
		entries = append(entries, inv.Entry())
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries
}

// GenerateResult is the outcome of GenerateInvoice.
type GenerateResult struct {
	Reference string                `json:"reference"`
	Date      time.Time             `json:"date"`
	Amount    decimal.Decimal       `json:"amount"`
	Status    billing.InvoiceStatus `json:"status"`
}

// Duplicate reports whether the client had already been billed today.
func (r GenerateResult) Duplicate() bool {
	return r.Status == billing.StatusDuplicatePrevented
}

// GenerateInvoice bills client once for today. A client already invoiced today
// gets the existing invoice back with status duplicate_prevented and nothing is
// written. Write failures are returned.
func (e *Engine) GenerateInvoice(ctx context.Context, client billing.Client) (GenerateResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	unlock, err := e.locker.Lock(lockCtx, e.lockKey(client))
	cancel()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("lock client %s: %w", client.Name, err)
	}
	defer unlock()

	now := e.clock.Now()
	today := billing.DateOf(now)

	// One read under the lock serves the duplicate check and the reference.
	ledger, ledgerErr := e.invoices.List(ctx)
	if ledgerErr != nil {
		e.logger.Warn().Err(ledgerErr).Str("client", client.Name).Msg("invoices unreadable, duplicate check relies on the store")
	}

	if existing, ok := billedOn(e.historyFrom(ledger, client.Name), today); ok {
		e.metrics.DuplicatePrevented(e.family.Name)
		e.logger.Info().Str("client", client.Name).Str("reference", existing.Reference).Msg("invoice already issued today")
		return duplicateOf(existing), nil
	}

	inv := billing.Invoice{
		Reference:   e.allocateReference(ledger, ledgerErr, now),
		IssuedAt:    now,
		ClientName:  client.Name,
		Base:        client.Base,
		Extra:       client.Extra,
		Discount:    client.Discount,
		Total:       client.Total(),
		Status:      billing.StatusInvoiced,
		ServiceType: e.family.ServiceTag,
		Note:        "Monthly billing cycle " + billing.FormatDate(today),
	}

	if err := e.invoices.Append(ctx, inv); err != nil {
		if !errors.Is(err, ports.ErrDuplicateInvoice) {
			return GenerateResult{}, fmt.Errorf("append invoice for %s: %w", client.Name, err)
		}
		e.metrics.DuplicatePrevented(e.family.Name)
		e.logger.Warn().Str("client", client.Name).Msg("concurrent invoice detected by store")
		if existing, ok := billedOn(e.History(ctx, client.Name), today); ok {
			return duplicateOf(existing), nil
		}
		return GenerateResult{Date: today, Status: billing.StatusDuplicatePrevented}, nil
	}

	if err := e.clients.UpdateLastBilled(ctx, client.Name, today); err != nil {
		e.logger.Warn().Err(err).Str("client", client.Name).Msg("failed to update last billed date")
	}

	e.publishCreated(ctx, inv)
	e.metrics.InvoiceGenerated(e.family.Name)
	e.logger.Info().
		Str("client", client.Name).
		Str("reference", inv.Reference).
		Str("amount", inv.Total.StringFixed(2)).
		Msg("invoice generated")

	return GenerateResult{
		Reference: inv.Reference,
		Date:      inv.IssuedAt,
		Amount:    inv.Total,
		Status:    inv.Status,
	}, nil
}

func (e *Engine) lockKey(c billing.Client) string {
	return e.family.Name + "/" + c.Key()
}

// allocateReference continues the family sequence over invoices. When they
// could not be read it falls back to a timestamp reference.
func (e *Engine) allocateReference(invoices []billing.Invoice, readErr error, now time.Time) string {
	if readErr != nil {
		e.logger.Warn().Err(readErr).Msg("invoice references unreadable, using timestamp reference")
		return billing.FallbackReference(e.family.Prefix, now)
	}
	refs := make([]string, len(invoices))
	for i, inv := range invoices {
		refs[i] = inv.Reference
	}
	return billing.NextReference(refs, e.family.Prefix)
}

// InvoiceCreatedEvent is the payload published after an invoice is written.
type InvoiceCreatedEvent struct {
	Family      string    `json:"family"`
	Reference   string    `json:"reference"`
	Client      string    `json:"client"`
	ServiceType string    `json:"service_type"`
	IssuedAt    time.Time `json:"issued_at"`
	Amount      string    `json:"amount"`
}

// InvoiceCreatedRoutingKey is the routing key of InvoiceCreatedEvent.
const InvoiceCreatedRoutingKey = "invoice.created"

func (e *Engine) publishCreated(ctx context.Context, inv billing.Invoice) {
	payload, err := json.Marshal(InvoiceCreatedEvent{
		Family:      e.family.Name,
		Reference:   inv.Reference,
		Client:      inv.ClientName,
		ServiceType: inv.ServiceType,
		IssuedAt:    inv.IssuedAt,
		Amount:      inv.Total.StringFixed(2),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to encode invoice event")
		return
	}
	if err := e.events.Publish(ctx, InvoiceCreatedRoutingKey, payload); err != nil {
		e.logger.Warn().Err(err).Str("reference", inv.Reference).Msg("failed to publish invoice event")
	}
}

func billedOn(history []billing.HistoryEntry, day time.Time) (billing.HistoryEntry, bool) {
	for _, h := range history {
		if billing.SameDay(h.Date, day) {
			return h, true
		}
	}
	return billing.HistoryEntry{}, false
}

func duplicateOf(h billing.HistoryEntry) GenerateResult {
	return GenerateResult{
		Reference: h.Reference,
		Date:      h.Date,
		Amount:    h.Amount,
		Status:    billing.StatusDuplicatePrevented,
	}
}

// lastBilled returns the later of the client's marker and the newest history
// entry, or nil when neither exists.
func lastBilled(c billing.Client, history []billing.HistoryEntry) *time.Time {
	var latest time.Time
	if c.LastBilled != nil && !c.LastBilled.IsZero() {
		latest = billing.DateOf(*c.LastBilled)
	}
	if len(history) > 0 {
		if d := billing.DateOf(history[0].Date); d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return nil
	}
	return &latest
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
