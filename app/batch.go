package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/shopspring/decimal"
)

// Run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RunSummary reports one daily billing run. It is returned even when some
// clients failed.
type RunSummary struct {
	RunID              string          `json:"run_id"`
	Family             string          `json:"family"`
	Trigger            string          `json:"trigger"`
	Timestamp          time.Time       `json:"timestamp"`
	TotalActiveClients int             `json:"total_active_clients"`
	BilledCount        int             `json:"billed_count"`
	SkippedCount       int             `json:"skipped_count"`
	ErrorCount         int             `json:"error_count"`
	BilledClients      []BilledClient  `json:"billed_clients"`
	Skipped            []SkippedClient `json:"skipped"`
	Errors             []ClientError   `json:"errors"`
}

// BilledClient is a client invoiced by a run.
type BilledClient struct {
	Client    string          `json:"client"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// SkippedClient is a client a run did not bill.
type SkippedClient struct {
	Client string             `json:"client"`
	Reason billing.SkipReason `json:"reason"`
}

// ClientError records a failure isolated to one client.
type ClientError struct {
	Client  string `json:"client"`
	Message string `json:"message"`
}

// RunDaily bills every client due today. Each client is processed in
// isolation: an error or panic is recorded against that client and the run
// continues with the next one.
func (e *Engine) RunDaily(ctx context.Context, trigger string) RunSummary {
	started := time.Now()
	now := e.clock.Now()
	today := billing.DateOf(now)

	summary := RunSummary{
		RunID:         e.ids.New(),
		Family:        e.family.Name,
		Trigger:       trigger,
		Timestamp:     now,
		BilledClients: []BilledClient{},
		Skipped:       []SkippedClient{},
		Errors:        []ClientError{},
	}
	log := e.logger.With().Str("run_id", summary.RunID).Str("trigger", trigger).Logger()

	defer func() {
		e.metrics.RunCompleted(e.family.Name, trigger, time.Since(started))
		log.Info().
			Int("active", summary.TotalActiveClients).
			Int("billed", summary.BilledCount).
			Int("skipped", summary.SkippedCount).
			Int("errors", summary.ErrorCount).
			Dur("duration", time.Since(started)).
			Msg("billing run finished")
	}()

	clients, err := e.clients.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list clients")
		summary.Errors = append(summary.Errors, ClientError{Message: fmt.Sprintf("list clients: %v", err)})
		summary.ErrorCount = 1
		e.metrics.ClientFailed(e.family.Name)
		return summary
	}

	for _, c := range clients {
		if c.Active && !c.Stopped(today) {
			summary.TotalActiveClients++
		}
	}

	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("billing run cancelled")
			summary.Errors = append(summary.Errors, ClientError{Client: c.Name, Message: err.Error()})
			summary.ErrorCount++
			break
		}

		res, reason, err := e.billClient(ctx, c, today)
		switch {
		case err != nil:
			log.Error().Err(err).Str("client", c.Name).Msg("billing failed for client")
			summary.Errors = append(summary.Errors, ClientError{Client: c.Name, Message: err.Error()})
			summary.ErrorCount++
			e.metrics.ClientFailed(e.family.Name)
		case reason != billing.SkipNone:
			log.Debug().Str("client", c.Name).Str("reason", string(reason)).Msg("client skipped")
			summary.Skipped = append(summary.Skipped, SkippedClient{Client: c.Name, Reason: reason})
			summary.SkippedCount++
			e.metrics.ClientSkipped(e.family.Name, string(reason))
		default:
			summary.BilledClients = append(summary.BilledClients, BilledClient{
				Client:    c.Name,
				Reference: res.Reference,
				Amount:    res.Amount,
			})
			summary.BilledCount++
		}
	}

	return summary
}

// billClient decides and bills one client. Panics become errors.
func (e *Engine) billClient(ctx context.Context, c billing.Client, today time.Time) (res GenerateResult, reason billing.SkipReason, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("client", c.Name).Bytes("stack", debug.Stack()).Msg("panic while billing client")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if reason := billing.Eligibility(c, today); reason != billing.SkipNone {
		return GenerateResult{}, reason, nil
	}

	history, err := e.history(ctx, c.Name)
	if err != nil {
		return GenerateResult{}, billing.SkipNone, err
	}
	if !billing.IsDueOn(c.AnchorDate, lastBilled(c, history), today) {
		return GenerateResult{}, billing.SkipNotDue, nil
	}

	res, err = e.GenerateInvoice(ctx, c)
	if err != nil {
		return GenerateResult{}, billing.SkipNone, err
	}
	if res.Duplicate() {
		return res, billing.SkipDuplicate, nil
	}
	return res, billing.SkipNone, nil
}
