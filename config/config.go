// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Families []FamilyConfig `yaml:"families"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Forecast ForecastConfig `yaml:"forecast"`
	Lock     LockConfig     `yaml:"lock"`
	Events   EventsConfig   `yaml:"events"`
	Notify   NotifyConfig   `yaml:"notify"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where clients and invoices live.
type StoreConfig struct {
	Driver string       `yaml:"driver"` // "memory", "sqlite" or "sheets"
	DSN    string       `yaml:"dsn"`    // sqlite file path
	Sheets SheetsConfig `yaml:"sheets"`
}

// SheetsConfig configures the Google Sheets store.
type SheetsConfig struct {
	SpreadsheetID   string            `yaml:"spreadsheet_id"`
	CredentialsFile string            `yaml:"credentials_file"` // empty uses application default credentials
	InvoiceTab      string            `yaml:"invoice_tab"`
	InvoiceColumns  map[string]string `yaml:"invoice_columns"`
	HeaderTTL       time.Duration     `yaml:"header_ttl"`
	InvoiceTTL      time.Duration     `yaml:"invoice_ttl"` // reuse of an invoice tab read for per-client lookups
}

// FamilyConfig configures one billing family.
type FamilyConfig struct {
	Name       string            `yaml:"name"`
	ServiceTag string            `yaml:"service_tag"`
	Prefix     string            `yaml:"prefix"`
	Tab        string            `yaml:"tab"`     // sheets client tab
	Columns    map[string]string `yaml:"columns"` // sheets header overrides
}

// ScheduleConfig configures the daily automatic run.
type ScheduleConfig struct {
	Enabled    bool          `yaml:"enabled"`
	At         string        `yaml:"at"`       // "HH:MM"
	Timezone   string        `yaml:"timezone"` // IANA zone for "today"
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// ForecastConfig configures billing previews.
type ForecastConfig struct {
	Days      int `yaml:"days"`
	MaxCycles int `yaml:"max_cycles"`
}

// LockConfig selects the per-client lock.
type LockConfig struct {
	Driver   string        `yaml:"driver"` // "memory" or "redis"
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EventsConfig selects where invoice events are published.
type EventsConfig struct {
	Driver   string `yaml:"driver"` // "none" or "rabbitmq"
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// NotifyConfig configures the report sent after each scheduled run.
type NotifyConfig struct {
	Driver         string     `yaml:"driver"` // "none", "log" or "smtp"
	To             []string   `yaml:"to"`
	OnlyOnActivity bool       `yaml:"only_on_activity"` // skip runs that billed nothing and failed nothing
	SMTP           SMTPConfig `yaml:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	From        string        `yaml:"from"`
	FromName    string        `yaml:"from_name"`
	UseTLS      bool          `yaml:"use_tls"`      // STARTTLS
	UseImplicit bool          `yaml:"use_implicit"` // TLS from connect, port 465
	Timeout     time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the billing HTTP surface.
type HTTPConfig struct {
	TriggerTokenHash string        `yaml:"trigger_token_hash"` // bcrypt; empty leaves run endpoints open
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // serve /metrics
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes, applying ${ENV} expansion,
// CAREBILL_* overrides and defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CAREBILL_SERVER_HOST           - Server host (default: 0.0.0.0)
//	CAREBILL_SERVER_PORT           - Server port (default: 8080)
//	CAREBILL_STORE_DRIVER          - memory, sqlite or sheets (default: memory)
//	CAREBILL_STORE_DSN             - SQLite path (default: carebill.db)
//	CAREBILL_SHEETS_SPREADSHEET_ID - Spreadsheet ID for the sheets driver
//	CAREBILL_SHEETS_CREDENTIALS    - Service account JSON key file
//	CAREBILL_SCHEDULE_ENABLED      - Run billing daily (default: false)
//	CAREBILL_SCHEDULE_AT           - Daily run time HH:MM (default: 09:00)
//	CAREBILL_TIMEZONE              - IANA zone for billing dates (default: UTC)
//	CAREBILL_FORECAST_DAYS         - Default preview window (default: 30)
//	CAREBILL_LOCK_DRIVER           - memory or redis (default: memory)
//	CAREBILL_REDIS_URL             - Redis URL for the redis lock
//	CAREBILL_EVENTS_DRIVER         - none or rabbitmq (default: none)
//	CAREBILL_RABBITMQ_URL          - AMQP URL for rabbitmq events
//	CAREBILL_NOTIFY_DRIVER         - none, log or smtp (default: none)
//	CAREBILL_NOTIFY_TO             - Comma-separated report recipients
//	CAREBILL_SMTP_HOST             - SMTP relay host
//	CAREBILL_SMTP_USERNAME         - SMTP user
//	CAREBILL_SMTP_PASSWORD         - SMTP password
//	CAREBILL_SMTP_FROM             - Report sender address
//	CAREBILL_TRIGGER_TOKEN_HASH    - bcrypt hash guarding run endpoints
//	CAREBILL_LOG_LEVEL             - debug, info, warn, error (default: info)
//	CAREBILL_LOG_FORMAT            - json or console (default: json)
//	CAREBILL_METRICS_ENABLED       - Serve /metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies CAREBILL_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAREBILL_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CAREBILL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("CAREBILL_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("CAREBILL_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("CAREBILL_SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Store.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("CAREBILL_SHEETS_CREDENTIALS"); v != "" {
		cfg.Store.Sheets.CredentialsFile = v
	}

	if v := os.Getenv("CAREBILL_SCHEDULE_ENABLED"); v != "" {
		cfg.Schedule.Enabled = parseBool(v)
	}
	if v := os.Getenv("CAREBILL_SCHEDULE_AT"); v != "" {
		cfg.Schedule.At = v
	}
	if v := os.Getenv("CAREBILL_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := os.Getenv("CAREBILL_FORECAST_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forecast.Days = n
		}
	}

	if v := os.Getenv("CAREBILL_LOCK_DRIVER"); v != "" {
		cfg.Lock.Driver = v
	}
	if v := os.Getenv("CAREBILL_REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("CAREBILL_EVENTS_DRIVER"); v != "" {
		cfg.Events.Driver = v
	}
	if v := os.Getenv("CAREBILL_RABBITMQ_URL"); v != "" {
		cfg.Events.URL = v
	}

	if v := os.Getenv("CAREBILL_NOTIFY_DRIVER"); v != "" {
		cfg.Notify.Driver = v
	}
	if v := os.Getenv("CAREBILL_NOTIFY_TO"); v != "" {
		cfg.Notify.To = splitList(v)
	}
	if v := os.Getenv("CAREBILL_SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
	}
	if v := os.Getenv("CAREBILL_SMTP_USERNAME"); v != "" {
		cfg.Notify.SMTP.Username = v
	}
	if v := os.Getenv("CAREBILL_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	if v := os.Getenv("CAREBILL_SMTP_FROM"); v != "" {
		cfg.Notify.SMTP.From = v
	}

	if v := os.Getenv("CAREBILL_TRIGGER_TOKEN_HASH"); v != "" {
		cfg.HTTP.TriggerTokenHash = v
	}

	if v := os.Getenv("CAREBILL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CAREBILL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CAREBILL_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultFamilies are used when the config names none.
func DefaultFamilies() []FamilyConfig {
	return []FamilyConfig{
		{Name: "home_care", ServiceTag: "Home Care", Prefix: "HC", Tab: "Home Care Clients"},
		{Name: "patient_admission", ServiceTag: "Patient Admission", Prefix: "PA", Tab: "Patient Admissions"},
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "carebill.db"
	}
	if cfg.Store.Sheets.InvoiceTab == "" {
		cfg.Store.Sheets.InvoiceTab = "Invoices"
	}
	if cfg.Store.Sheets.HeaderTTL == 0 {
		cfg.Store.Sheets.HeaderTTL = 10 * time.Minute
	}
	if cfg.Store.Sheets.InvoiceTTL == 0 {
		cfg.Store.Sheets.InvoiceTTL = time.Minute
	}

	if len(cfg.Families) == 0 {
		cfg.Families = DefaultFamilies()
	}
	for i := range cfg.Families {
		f := &cfg.Families[i]
		if f.ServiceTag == "" {
			f.ServiceTag = f.Name
		}
		if f.Tab == "" {
			f.Tab = f.ServiceTag
		}
	}

	if cfg.Schedule.At == "" {
		cfg.Schedule.At = "09:00"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.Schedule.RunTimeout == 0 {
		cfg.Schedule.RunTimeout = 30 * time.Minute
	}

	if cfg.Forecast.Days == 0 {
		cfg.Forecast.Days = 30
	}
	if cfg.Forecast.MaxCycles == 0 {
		cfg.Forecast.MaxCycles = 100
	}

	if cfg.Lock.Driver == "" {
		cfg.Lock.Driver = "memory"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 2 * time.Minute
	}
	if cfg.Lock.Timeout == 0 {
		cfg.Lock.Timeout = 30 * time.Second
	}

	if cfg.Events.Driver == "" {
		cfg.Events.Driver = "none"
	}

	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "none"
	}
	if cfg.Notify.SMTP.Port == 0 {
		cfg.Notify.SMTP.Port = 587
	}
	if cfg.Notify.SMTP.FromName == "" {
		cfg.Notify.SMTP.FromName = "carebill"
	}
	if cfg.Notify.SMTP.Timeout == 0 {
		cfg.Notify.SMTP.Timeout = 30 * time.Second
	}

	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 5 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Store.Driver {
	case "memory", "sqlite":
	case "sheets":
		if cfg.Store.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("store.sheets.spreadsheet_id is required when store.driver is 'sheets'")
		}
	default:
		return fmt.Errorf("store.driver must be one of: memory, sqlite, sheets, got %q", cfg.Store.Driver)
	}

	seen := make(map[string]bool, len(cfg.Families))
	for i, f := range cfg.Families {
		if f.Name == "" {
			return fmt.Errorf("families[%d].name is required", i)
		}
		if f.Prefix == "" {
			return fmt.Errorf("families[%d].prefix is required", i)
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("families[%d]: duplicate name %q", i, f.Name)
		}
		seen[key] = true
	}

	if _, _, err := parseClock(cfg.Schedule.At); err != nil {
		return fmt.Errorf("schedule.at: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	if cfg.Forecast.Days < 0 {
		return fmt.Errorf("forecast.days must not be negative")
	}

	switch cfg.Lock.Driver {
	case "memory":
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required when lock.driver is 'redis'")
		}
	default:
		return fmt.Errorf("lock.driver must be 'memory' or 'redis', got %q", cfg.Lock.Driver)
	}

	switch cfg.Events.Driver {
	case "none":
	case "rabbitmq":
		if cfg.Events.URL == "" {
			return fmt.Errorf("events.url is required when events.driver is 'rabbitmq'")
		}
	default:
		return fmt.Errorf("events.driver must be 'none' or 'rabbitmq', got %q", cfg.Events.Driver)
	}

	switch cfg.Notify.Driver {
	case "none":
	case "log", "smtp":
		if len(cfg.Notify.To) == 0 {
			return fmt.Errorf("notify.to is required when notify.driver is %q", cfg.Notify.Driver)
		}
		if cfg.Notify.Driver == "smtp" && (cfg.Notify.SMTP.Host == "" || cfg.Notify.SMTP.From == "") {
			return fmt.Errorf("notify.smtp.host and notify.smtp.from are required when notify.driver is 'smtp'")
		}
	default:
		return fmt.Errorf("notify.driver must be one of: none, log, smtp, got %q", cfg.Notify.Driver)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// parseClock checks an "HH:MM" time of day.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}
