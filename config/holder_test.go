package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/carebill/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Schedule.At != "09:30" {
		t.Errorf("Schedule.At = %s, want 09:30", got.Schedule.At)
	}
}

func TestHolder_NewHolderInvalid(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: nope\n")
	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestHolder_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var (
		mu       sync.Mutex
		received *config.Config
		outcomes []error
	)
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})
	h.ObserveReloads(func(err error, at time.Time) {
		mu.Lock()
		outcomes = append(outcomes, err)
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("schedule:\n  at: \"11:45\"\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.Schedule.At != "11:45" {
		t.Errorf("OnChange received %+v, want schedule.at 11:45", received)
	}
	if len(outcomes) != 1 || outcomes[0] != nil {
		t.Errorf("observed outcomes = %v, want one success", outcomes)
	}
	if h.Get().Schedule.At != "11:45" {
		t.Errorf("Get().Schedule.At = %s, want 11:45", h.Get().Schedule.At)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var observed error
	h.ObserveReloads(func(err error, at time.Time) { observed = err })
	called := false
	h.OnChange(func(*config.Config) { called = true })

	if err := os.WriteFile(path, []byte("schedule:\n  at: \"25:99\"\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if observed == nil || errors.Is(observed, os.ErrNotExist) {
		t.Errorf("observed = %v, want validation error", observed)
	}
	if called {
		t.Error("OnChange must not run for a rejected config")
	}
	if h.Get().Schedule.At != "09:30" {
		t.Errorf("should keep old config, got Schedule.At = %s", h.Get().Schedule.At)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan string, 4)
	h.OnChange(func(cfg *config.Config) {
		select {
		case changed <- cfg.Schedule.At:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("schedule:\n  at: \"06:05\"\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case at := <-changed:
			if at == "06:05" {
				return
			}
		case <-deadline:
			t.Fatalf("file watcher did not reload; Schedule.At = %s", h.Get().Schedule.At)
		}
	}
}

func TestHolder_StopTwice(t *testing.T) {
	path := writeConfig(t, validConfig())
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	for _, want := range []string{"schedule.at", "logging.level"} {
		if !contains(reloadable, want) {
			t.Errorf("%s not in ReloadableFields", want)
		}
	}
	restart := config.NonReloadableFields()
	for _, want := range []string{"server.port", "store", "families"} {
		if !contains(restart, want) {
			t.Errorf("%s not in NonReloadableFields", want)
		}
	}
}

func TestDiff(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Server:   config.ServerConfig{Host: "0.0.0.0", Port: 8080},
			Schedule: config.ScheduleConfig{At: "09:30", Timezone: "Asia/Kolkata"},
			Families: []config.FamilyConfig{{Name: "home_care"}},
			Logging:  config.LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name       string
		mutate     func(c *config.Config)
		field      string
		reloadable bool
	}{
		{"billing time", func(c *config.Config) { c.Schedule.At = "10:00" }, "schedule.at", true},
		{"log level", func(c *config.Config) { c.Logging.Level = "debug" }, "logging.level", true},
		{"port", func(c *config.Config) { c.Server.Port = 9090 }, "server.port", false},
		{"family added", func(c *config.Config) {
			c.Families = append(c.Families, config.FamilyConfig{Name: "patient_admission"})
		}, "families", false},
		{"store section", func(c *config.Config) { c.Store.DSN = "other.db" }, "store", false},
		{"notify section", func(c *config.Config) { c.Notify.To = []string{"ops@example.com"} }, "notify", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base()
			tt.mutate(next)
			changes := config.Diff(base(), next)
			if len(changes) != 1 {
				t.Fatalf("Diff = %+v, want one change", changes)
			}
			if changes[0].Field != tt.field {
				t.Errorf("Field = %s, want %s", changes[0].Field, tt.field)
			}
			if changes[0].Reloadable() != tt.reloadable {
				t.Errorf("Reloadable() = %v, want %v", changes[0].Reloadable(), tt.reloadable)
			}
		})
	}

	if changes := config.Diff(base(), base()); len(changes) != 0 {
		t.Errorf("Diff of equal configs = %+v, want none", changes)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Helpers

func validConfig() string {
	return `
schedule:
  enabled: true
  at: "09:30"
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
