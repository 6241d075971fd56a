// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settleDelay collapses the burst of events editors emit for one save.
const settleDelay = 200 * time.Millisecond

// Holder owns the live configuration of a running process. Only the fields
// listed by ReloadableFields take effect on reload; the rest are reported and
// wait for a restart.
type Holder struct {
	path   string
	logger zerolog.Logger

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
	observer  func(err error, at time.Time)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return &Holder{
		path:    abs,
		logger:  logger.With().Str("component", "config").Logger(),
		current: cfg,
		stopCh:  make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnChange registers fn to run after every accepted reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// ObserveReloads registers fn to be told the outcome of every reload attempt.
func (h *Holder) ObserveReloads(fn func(err error, at time.Time)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = fn
}

// Reload re-reads the file. An invalid file leaves the current configuration in place.
func (h *Holder) Reload() error {
	next, err := Load(h.path)

	h.mu.Lock()
	observer := h.observer
	if err != nil {
		h.mu.Unlock()
		if observer != nil {
			observer(err, time.Now())
		}
		h.logger.Error().Err(err).Str("path", h.path).Msg("config rejected, keeping current")
		return fmt.Errorf("reload config: %w", err)
	}
	prev := h.current
	h.current = next
	listeners := append([]func(*Config){}, h.listeners...)
	h.mu.Unlock()

	if observer != nil {
		observer(nil, time.Now())
	}
	h.report(Diff(prev, next))
	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

// WatchFile reloads whenever the file is written or replaced. The parent
// directory is watched so atomic renames are seen.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = w

	go h.watchLoop(w)
	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.reloadFrom("sighup")
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)
	var settle <-chan time.Time

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			settle = time.After(settleDelay)
		case <-settle:
			settle = nil
			h.reloadFrom("file")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) reloadFrom(source string) {
	h.logger.Info().Str("source", source).Msg("reloading configuration")
	if err := h.Reload(); err == nil {
		h.logger.Info().Str("source", source).Msg("configuration reloaded")
	}
}

func (h *Holder) report(changes []Change) {
	for _, c := range changes {
		if c.Reloadable() {
			h.logger.Info().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("config applied")
			continue
		}
		h.logger.Warn().Str("field", c.Field).Msg("config change needs a restart")
	}
}

// Change is one field that differs between two configurations.
type Change struct {
	Field string
	Old   string
	New   string
}

// Reloadable reports whether the change takes effect without a restart.
func (c Change) Reloadable() bool {
	for _, f := range ReloadableFields() {
		if f == c.Field {
			return true
		}
	}
	return false
}

// Diff lists the tracked fields that differ between a and b. Whole sections
// are compared as one field and their values are not rendered.
func Diff(a, b *Config) []Change {
	var out []Change
	scalar := func(field, x, y string) {
		if x != y {
			out = append(out, Change{Field: field, Old: x, New: y})
		}
	}
	section := func(field string, x, y any) {
		if !reflect.DeepEqual(x, y) {
			out = append(out, Change{Field: field})
		}
	}

	scalar("schedule.at", a.Schedule.At, b.Schedule.At)
	scalar("logging.level", a.Logging.Level, b.Logging.Level)
	scalar("server.host", a.Server.Host, b.Server.Host)
	scalar("server.port", strconv.Itoa(a.Server.Port), strconv.Itoa(b.Server.Port))
	scalar("schedule.timezone", a.Schedule.Timezone, b.Schedule.Timezone)
	scalar("families", familyNames(a.Families), familyNames(b.Families))
	section("store", a.Store, b.Store)
	section("lock", a.Lock, b.Lock)
	section("events", a.Events, b.Events)
	section("notify", a.Notify, b.Notify)
	return out
}

func familyNames(fams []FamilyConfig) string {
	names := make([]string, len(fams))
	for i, f := range fams {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"schedule.at",
		"logging.level",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"store",
		"families",
		"schedule.timezone",
		"lock",
		"events",
		"notify",
	}
}
