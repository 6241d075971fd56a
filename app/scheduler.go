package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/carebill/ports"
	"github.com/rs/zerolog"
)

// TimeOfDay is a wall-clock time in the scheduler's zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NextRun returns the first occurrence of at strictly after now, in now's location.
// This is a PURE function.
func NextRun(now time.Time, at TimeOfDay) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, m, d+1, at.Hour, at.Minute, 0, 0, now.Location())
	}
	return next
}

// DailyRunner runs every billing family once. *Registry implements it.
type DailyRunner interface {
	RunAll(ctx context.Context, trigger string) []RunSummary
}

// SchedulerConfig contains configuration for Scheduler.
type SchedulerConfig struct {
	At         TimeOfDay
	RunTimeout time.Duration // per firing (default 30m)
}

// Scheduler fires the daily billing run once a day at a configured time.
type Scheduler struct {
	runner DailyRunner
	clock  ports.Clock
	logger zerolog.Logger

	runTimeout time.Duration

	mu      sync.Mutex
	at      TimeOfDay
	next    time.Time
	running bool

	reschedule chan struct{}
	stop       chan struct{}
	done       chan struct{}
}

// NewScheduler creates a scheduler. Call Start to begin firing.
func NewScheduler(runner DailyRunner, clock ports.Clock, logger zerolog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		runner:     runner,
		clock:      clock,
		logger:     logger.With().Str("service", "scheduler").Logger(),
		runTimeout: cfg.RunTimeout,
		at:         cfg.At,
		reschedule: make(chan struct{}, 1),
	}
}

// Start begins the background scheduling goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Reschedule changes the daily firing time without a restart.
func (s *Scheduler) Reschedule(at TimeOfDay) {
	s.mu.Lock()
	changed := s.at != at
	s.at = at
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info().Str("at", at.String()).Msg("billing run rescheduled")
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

// At returns the configured firing time.
func (s *Scheduler) At() TimeOfDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// Next returns the next planned firing, zero when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	for {
		from := s.clock.Now()
		if last.After(from) {
			from = last
		}
		s.mu.Lock()
		next := NextRun(from, s.at)
		s.next = next
		s.mu.Unlock()

		s.logger.Debug().Time("next", next).Msg("next billing run planned")
		timer := time.NewTimer(next.Sub(s.clock.Now()))

		select {
		case <-stop:
			timer.Stop()
			return
		case <-s.reschedule:
			timer.Stop()
			last = time.Time{}
			continue
		case <-timer.C:
		}

		last = next
		s.fire()
	}
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	for _, sum := range s.runner.RunAll(ctx, TriggerScheduled) {
		s.logger.Info().
			Str("family", sum.Family).
			Str("run_id", sum.RunID).
			Int("billed", sum.BilledCount).
			Int("errors", sum.ErrorCount).
			Msg("scheduled billing run complete")
	}
}
