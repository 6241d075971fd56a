package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/carebill/app"
	"github.com/artpar/carebill/domain/billing"
)

func TestPreview(t *testing.T) {
	inactive := client("Dormant", day(2025, 1, 15), 999, 0, 0)
	inactive.Active = false
	discharged := client("Discharged", day(2025, 1, 15), 999, 0, 0)
	stop := day(2025, 2, 1)
	discharged.StopDate = &stop
	noAnchor := client("No Anchor", time.Time{}, 999, 0, 0)

	f := newFixture(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
		client("Zoe Fernandes", day(2025, 1, 15), 1000, 0, 0), // Feb 15, 5 days
		client("Old Signup", day(2024, 12, 31), 2000, 500, 0), // catches up to Feb 28, 18 days
		client("Today Client", day(2025, 1, 10), 300, 0, 100), // Feb 10, 0 days
		client("Next Month", day(2025, 1, 5), 4000, 0, 0),     // Mar 5, 23 days
		client("Amit Shah", day(2025, 1, 15), 1500, 0, 2000),  // Feb 15, 5 days, zero amount
		inactive, discharged, noAnchor,
	)

	got, err := f.engine.Preview(context.Background(), 20)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	want := []struct {
		client string
		next   time.Time
		days   int
		amount int64
	}{
		{"Today Client", day(2025, 2, 10), 0, 200},
		{"Amit Shah", day(2025, 2, 15), 5, 0},
		{"Zoe Fernandes", day(2025, 2, 15), 5, 1000},
		{"Old Signup", day(2025, 2, 28), 18, 2500},
	}
	if len(got.Items) != len(want) {
		t.Fatalf("len(Items) = %d, want %d: %+v", len(got.Items), len(want), got.Items)
	}
	for i, w := range want {
		it := got.Items[i]
		if it.Client != w.client || !it.NextBillingDate.Equal(w.next) || it.DaysUntil != w.days || !it.Amount.Equal(dec(w.amount)) {
			t.Errorf("Items[%d] = %s %s %d %s; want %s %s %d %d", i,
				it.Client, billing.FormatDate(it.NextBillingDate), it.DaysUntil, it.Amount,
				w.client, billing.FormatDate(w.next), w.days, w.amount)
		}
	}
	if !got.Total.Equal(dec(3700)) {
		t.Errorf("Total = %s, want 3700", got.Total)
	}
	if got.WindowDays != 20 || got.Family != "home_care" {
		t.Errorf("WindowDays, Family = %d, %s", got.WindowDays, got.Family)
	}
	if f.metrics.forecast != 3700 {
		t.Errorf("forecast metric = %v, want 3700", f.metrics.forecast)
	}
	if n := len(f.stored(t)); n != 0 {
		t.Errorf("Preview wrote %d invoices", n)
	}
}

func TestPreview_DefaultWindow(t *testing.T) {
	f := newFixture(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
		client("Next Month", day(2025, 1, 5), 4000, 0, 0), // Mar 5, 23 days
	)

	got, err := f.engine.Preview(context.Background(), 0)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if got.WindowDays != 30 || len(got.Items) != 1 {
		t.Errorf("Preview(0) = window %d, %d items; want 30, 1", got.WindowDays, len(got.Items))
	}
}

func TestPreview_UsesHistory(t *testing.T) {
	c := client("Asha Rao", day(2025, 1, 31), 100, 0, 0)
	f := newFixture(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), c)
	if err := f.invoices.Append(context.Background(), billing.Invoice{
		Reference: "HC-0001", ClientName: "Asha Rao", ServiceType: "Home Care",
		IssuedAt: day(2025, 2, 28), Status: billing.StatusInvoiced,
	}); err != nil {
		t.Fatalf("seed Append failed: %v", err)
	}

	got, err := f.engine.Preview(context.Background(), 31)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(got.Items) != 1 || !got.Items[0].NextBillingDate.Equal(day(2025, 3, 31)) {
		t.Errorf("Items = %+v, want Mar 31", got.Items)
	}
}

func TestPreview_CapExcludesStaleProjection(t *testing.T) {
	f := newFixture(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
		client("Ancient", day(2000, 1, 15), 100, 0, 0),
	)
	engine := f.build(f.invoices, app.EngineConfig{MaxProjectionCycles: 10})

	got, err := engine.Preview(context.Background(), 30)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(got.Items) != 0 {
		t.Errorf("Items = %+v, want none", got.Items)
	}
}

func TestPreview_ClientListFailure(t *testing.T) {
	f := newFixture(time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC))
	boom := errors.New("offline")
	f.clients.FailList(boom)

	if _, err := f.engine.Preview(context.Background(), 30); !errors.Is(err, boom) {
		t.Errorf("Preview() error = %v, want %v", err, boom)
	}
}
