package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/carebill/adapters/clock"
	"github.com/artpar/carebill/app"
	"github.com/rs/zerolog"
)

// fakeRunner implements app.DailyRunner for testing.
type fakeRunner struct {
	mu       sync.Mutex
	triggers []string
	called   chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{called: make(chan struct{}, 10)}
}

func (r *fakeRunner) RunAll(ctx context.Context, trigger string) []app.RunSummary {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.called <- struct{}{}
	return []app.RunSummary{{Family: "home_care", Trigger: trigger}}
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func waitCalled(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.called:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not fire")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    app.TimeOfDay
		wantErr bool
	}{
		{"06:30", app.TimeOfDay{Hour: 6, Minute: 30}, false},
		{" 0:05 ", app.TimeOfDay{Hour: 0, Minute: 5}, false},
		{"23:59", app.TimeOfDay{Hour: 23, Minute: 59}, false},
		{"24:00", app.TimeOfDay{}, true},
		{"12:60", app.TimeOfDay{}, true},
		{"noon", app.TimeOfDay{}, true},
		{"", app.TimeOfDay{}, true},
	}
	for _, tt := range tests {
		got, err := app.ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if s := (app.TimeOfDay{Hour: 6, Minute: 5}).String(); s != "06:05" {
		t.Errorf("String() = %q, want 06:05", s)
	}
}

func TestNextRun(t *testing.T) {
	at := app.TimeOfDay{Hour: 9, Minute: 0}
	tests := []struct {
		name string
		now  time.Time
		at   app.TimeOfDay
		want time.Time
	}{
		{"later today", time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC), at, time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)},
		{"exactly now is tomorrow", time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC), at, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"passed today", time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC), app.TimeOfDay{Hour: 0, Minute: 15}, time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)},
		{"leap day", time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC), at, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := app.NextRun(tt.now, tt.at); !got.Equal(tt.want) {
			t.Errorf("%s: NextRun() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNextRun_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 2, 28, 7, 0, 0, 0, loc)

	got := app.NextRun(now, app.TimeOfDay{Hour: 6, Minute: 0})
	want := time.Date(2025, 3, 1, 6, 0, 0, 0, loc)
	if !got.Equal(want) || got.Location() != loc {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestScheduler_FiresOncePerDay(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 2, 28, 8, 59, 59, 950_000_000, time.UTC))
	runner := newFakeRunner()
	s := app.NewScheduler(runner, clk, zerolog.Nop(), app.SchedulerConfig{At: app.TimeOfDay{Hour: 9}})

	s.Start()
	s.Start() // no-op
	waitCalled(t, runner)
	s.Stop()

	if n := runner.count(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
	if runner.triggers[0] != app.TriggerScheduled {
		t.Errorf("trigger = %q, want scheduled", runner.triggers[0])
	}
	if want := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
		t.Errorf("Next() = %v, want %v", s.Next(), want)
	}
}

func TestScheduler_Reschedule(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 2, 28, 7, 59, 59, 950_000_000, time.UTC))
	runner := newFakeRunner()
	s := app.NewScheduler(runner, clk, zerolog.Nop(), app.SchedulerConfig{At: app.TimeOfDay{Hour: 18}})

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for s.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if want := time.Date(2025, 2, 28, 18, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
		t.Fatalf("Next() = %v, want %v", s.Next(), want)
	}

	s.Reschedule(app.TimeOfDay{Hour: 8})
	if s.At() != (app.TimeOfDay{Hour: 8}) {
		t.Errorf("At() = %v, want 08:00", s.At())
	}
	waitCalled(t, runner)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := app.NewScheduler(newFakeRunner(), clock.Real{}, zerolog.Nop(), app.SchedulerConfig{})
	s.Stop()
	if !s.Next().IsZero() {
		t.Errorf("Next() = %v, want zero", s.Next())
	}
}
