package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/shopspring/decimal"
)

// Forecast is a read-only projection of the bills falling due within a window.
type Forecast struct {
	Family      string          `json:"family"`
	GeneratedAt time.Time       `json:"generated_at"`
	WindowDays  int             `json:"window_days"`
	Total       decimal.Decimal `json:"total"`
	Items       []ForecastItem  `json:"items"`
}

// ForecastItem is one client's next bill.
type ForecastItem struct {
	Client          string          `json:"client"`
	NextBillingDate time.Time       `json:"next_billing_date"`
	DaysUntil       int             `json:"days_until"`
	Base            decimal.Decimal `json:"base"`
	Extra           decimal.Decimal `json:"extra"`
	Discount        decimal.Decimal `json:"discount"`
	Amount          decimal.Decimal `json:"amount"`
}

// Preview projects the next billing date of every active, non-stopped client
// with a usable anchor and keeps those within [today, today+days]. Nothing is
// written. days <= 0 uses the configured default window.
func (e *Engine) Preview(ctx context.Context, days int) (Forecast, error) {
	if days <= 0 {
		days = e.cfg.ForecastDays
	}
	now := e.clock.Now()
	today := billing.DateOf(now)
	horizon := today.AddDate(0, 0, days)

	clients, err := e.clients.List(ctx)
	if err != nil {
		return Forecast{}, fmt.Errorf("list clients: %w", err)
	}

	f := Forecast{
		Family:      e.family.Name,
		GeneratedAt: now,
		WindowDays:  days,
		Total:       decimal.Zero,
		Items:       []ForecastItem{},
	}
	for _, c := range clients {
		if billing.Eligibility(c, today) != billing.SkipNone {
			continue
		}

		next, capped := billing.NextFutureBillingDate(c.AnchorDate, lastBilled(c, e.History(ctx, c.Name)), today, e.cfg.MaxProjectionCycles)
		if capped {
			e.logger.Warn().
				Str("client", c.Name).
				Int("max_cycles", e.cfg.MaxProjectionCycles).
				Str("projected", billing.FormatDate(next)).
				Msg("projection cycle cap reached")
		}
		if next.Before(today) || next.After(horizon) {
			continue
		}

		item := ForecastItem{
			Client:          c.Name,
			NextBillingDate: next,
			DaysUntil:       billing.DaysBetween(today, next),
			Base:            c.Base,
			Extra:           c.Extra,
			Discount:        c.Discount,
			Amount:          c.Total(),
		}
		f.Items = append(f.Items, item)
		f.Total = f.Total.Add(item.Amount)
	}

	sort.SliceStable(f.Items, func(i, j int) bool {
		if f.Items[i].DaysUntil != f.Items[j].DaysUntil {
			return f.Items[i].DaysUntil < f.Items[j].DaysUntil
		}
		return normalizeName(f.Items[i].Client) < normalizeName(f.Items[j].Client)
	})

	total, _ := f.Total.Float64()
	e.metrics.Forecast(e.family.Name, total)
	return f, nil
}
