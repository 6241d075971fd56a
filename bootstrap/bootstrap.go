// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/carebill/adapters/clock"
	"github.com/artpar/carebill/adapters/email"
	"github.com/artpar/carebill/adapters/events"
	"github.com/artpar/carebill/adapters/hasher"
	apihttp "github.com/artpar/carebill/adapters/http"
	"github.com/artpar/carebill/adapters/idgen"
	"github.com/artpar/carebill/adapters/memory"
	"github.com/artpar/carebill/adapters/metrics"
	redislock "github.com/artpar/carebill/adapters/redis"
	"github.com/artpar/carebill/adapters/sheets"
	"github.com/artpar/carebill/adapters/sqlite"
	"github.com/artpar/carebill/app"
	"github.com/artpar/carebill/config"
	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/pkg/cache"
	"github.com/artpar/carebill/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *app.Registry
	Scheduler  *app.Scheduler
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	DB         *sqlite.DB

	holder *config.Holder
	events ports.EventPublisher
	redis  io.Closer
}

// Options provides optional inputs to New.
type Options struct {
	// Holder enables hot reload of schedule.at and logging.level.
	Holder *config.Holder

	// Version is reported by GET /version.
	Version string

	// Logger overrides the logger built from cfg.Logging.
	Logger *zerolog.Logger

	// Clock overrides the wall clock in the configured time zone.
	Clock ports.Clock
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger.Info().Str("store", cfg.Store.Driver).Int("families", len(cfg.Families)).Msg("initializing carebill")

	a := &App{
		Config: cfg,
		Logger: logger,
		holder: opts.Holder,
	}

	ok := false
	defer func() {
		if !ok {
			a.closeAdapters()
		}
	}()

	clk := opts.Clock
	if clk == nil {
		wall, err := clock.NewReal(cfg.Schedule.Timezone)
		if err != nil {
			return nil, fmt.Errorf("billing timezone: %w", err)
		}
		clk = wall
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(registry)
		logger.Info().Msg("prometheus metrics enabled")
	}

	ctx := context.Background()

	stores, err := a.openStores(ctx, clk)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	locker, err := a.initLocker(ctx)
	if err != nil {
		return nil, fmt.Errorf("init lock: %w", err)
	}

	if err := a.initEvents(); err != nil {
		return nil, fmt.Errorf("init events: %w", err)
	}

	engines := make([]*app.Engine, 0, len(cfg.Families))
	for _, fam := range cfg.Families {
		clients, err := stores.clients(fam)
		if err != nil {
			return nil, fmt.Errorf("family %s: %w", fam.Name, err)
		}
		deps := app.EngineDeps{
			Clients:  clients,
			Invoices: stores.invoices,
			Locker:   locker,
			Events:   a.events,
			Clock:    clk,
			IDs:      idgen.UUID{Prefix: "run_"},
			Logger:   logger,
		}
		if a.Metrics != nil {
			deps.Metrics = a.Metrics
		}
		engines = append(engines, app.NewEngine(
			app.Family{Name: fam.Name, ServiceTag: fam.ServiceTag, Prefix: fam.Prefix},
			deps,
			app.EngineConfig{
				MaxProjectionCycles: cfg.Forecast.MaxCycles,
				ForecastDays:        cfg.Forecast.Days,
				LockTimeout:         cfg.Lock.Timeout,
			},
		))
	}
	a.Registry, err = app.NewRegistry(engines...)
	if err != nil {
		return nil, err
	}

	at, err := app.ParseTimeOfDay(cfg.Schedule.At)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	runner, err := a.scheduledRunner()
	if err != nil {
		return nil, fmt.Errorf("init notify: %w", err)
	}
	a.Scheduler = app.NewScheduler(runner, clk, logger, app.SchedulerConfig{
		At:         at,
		RunTimeout: cfg.Schedule.RunTimeout,
	})

	a.initHTTPServer(opts.Version, registry)
	a.watchConfig()

	ok = true
	return a, nil
}

// storeSet holds the invoice store shared by every family and builds each
// family's client store.
type storeSet struct {
	invoices ports.InvoiceStore
	clients  func(config.FamilyConfig) (ports.ClientStore, error)
}

func (a *App) openStores(ctx context.Context, clk ports.Clock) (storeSet, error) {
	cfg := a.Config.Store
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return storeSet{}, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return storeSet{}, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Logger.Info().Str("dsn", cfg.DSN).Msg("database initialized")
		return storeSet{
			invoices: sqlite.NewInvoiceStore(db),
			clients: func(fam config.FamilyConfig) (ports.ClientStore, error) {
				return sqlite.NewClientStore(db, fam.Name), nil
			},
		}, nil

	case "sheets":
		client, err := sheets.NewClient(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			return storeSet{}, err
		}
		book := sheets.NewBook(client, cfg.Sheets.SpreadsheetID, cache.NewTTLCache[string, []string](), cfg.Sheets.HeaderTTL)
		invoiceCols, err := columnsFrom[sheets.InvoiceColumns](cfg.Sheets.InvoiceColumns)
		if err != nil {
			return storeSet{}, fmt.Errorf("invoice_columns: %w", err)
		}
		loc := time.UTC
		if withLoc, ok := clk.(clock.Real); ok && withLoc.Location != nil {
			loc = withLoc.Location
		}
		a.Logger.Info().Str("spreadsheet", cfg.Sheets.SpreadsheetID).Msg("google sheets store initialized")
		return storeSet{
			invoices: sheets.NewInvoiceStore(book, cfg.Sheets.InvoiceTab, invoiceCols, loc).
				CacheRecent(cache.NewTTLCache[string, []billing.Invoice](), cfg.Sheets.InvoiceTTL),
			clients: func(fam config.FamilyConfig) (ports.ClientStore, error) {
				cols, err := columnsFrom[sheets.ClientColumns](fam.Columns)
				if err != nil {
					return nil, fmt.Errorf("columns: %w", err)
				}
				return sheets.NewClientStore(book, fam.Tab, cols.WithDefaults(familyLayout(fam.Name))), nil
			},
		}, nil

	default:
		a.Logger.Warn().
			Str("driver", cfg.Driver).
			Int("families", len(a.Config.Families)).
			Msg("in-memory store starts with no clients and nothing can add them, runs will bill nothing; set store.driver to sqlite or sheets")
		return storeSet{
			invoices: memory.NewInvoiceStore(),
			clients: func(config.FamilyConfig) (ports.ClientStore, error) {
				return memory.NewClientStore(), nil
			},
		}, nil
	}
}

// familyLayout picks the default sheet layout for a family.
func familyLayout(name string) sheets.ClientColumns {
	n := strings.ToLower(name)
	if strings.Contains(n, "admission") || strings.Contains(n, "patient") {
		return sheets.AdmissionColumns
	}
	return sheets.HomeCareColumns
}

// columnsFrom decodes a column override map into a column layout.
// Unknown keys are rejected.
func columnsFrom[T any](overrides map[string]string) (T, error) {
	var out T
	if len(overrides) == 0 {
		return out, nil
	}
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return out, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *App) initLocker(ctx context.Context) (ports.Locker, error) {
	cfg := a.Config.Lock
	if cfg.Driver != "redis" {
		return memory.NewLocker(), nil
	}
	client, err := redislock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.Logger.Info().Msg("redis client locks enabled")
	return redislock.NewLocker(client, redislock.LockerConfig{TTL: cfg.TTL}), nil
}

func (a *App) initEvents() error {
	cfg := a.Config.Events
	if cfg.Driver != "rabbitmq" {
		a.events = events.NewNoopPublisher(a.Logger)
		return nil
	}
	pub, err := events.Dial(cfg.URL, cfg.Exchange, a.Logger)
	if err != nil {
		return err
	}
	a.events = pub
	a.Logger.Info().Str("exchange", cfg.Exchange).Msg("rabbitmq invoice events enabled")
	return nil
}

// scheduledRunner wraps the registry with the run report when notify is on.
// Manual runs over HTTP or the CLI are not reported.
func (a *App) scheduledRunner() (app.DailyRunner, error) {
	cfg := a.Config.Notify
	var sender ports.EmailSender
	switch cfg.Driver {
	case "smtp":
		smtpSender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			FromName:    cfg.SMTP.FromName,
			UseTLS:      cfg.SMTP.UseTLS,
			UseImplicit: cfg.SMTP.UseImplicit,
			Timeout:     cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	case "log":
		sender = email.NewLogSender(a.Logger)
	default:
		return a.Registry, nil
	}
	a.Logger.Info().Str("driver", cfg.Driver).Strs("to", cfg.To).Msg("run reports enabled")
	return app.NewReportingRunner(a.Registry, sender, a.Logger, app.ReportConfig{
		To:             cfg.To,
		OnlyOnActivity: cfg.OnlyOnActivity,
	}), nil
}

func (a *App) initHTTPServer(version string, registry *prometheus.Registry) {
	cfg := a.Config

	routerCfg := apihttp.RouterConfig{
		Version:          version,
		Hasher:           hasher.NewBcrypt(0),
		TriggerTokenHash: []byte(cfg.HTTP.TriggerTokenHash),
		RequestTimeout:   cfg.HTTP.RequestTimeout,
	}
	if a.Metrics != nil {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	if cfg.HTTP.TriggerTokenHash == "" {
		a.Logger.Warn().Msg("no trigger token configured, run endpoints are open")
	}

	router := apihttp.NewRouter(a.Registry, a.Logger, routerCfg)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// watchConfig applies hot-reloadable settings when the holder reloads.
func (a *App) watchConfig() {
	if a.holder == nil {
		return
	}
	if a.Metrics != nil {
		a.holder.ObserveReloads(a.Metrics.ConfigReloaded)
	}
	a.holder.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		at, err := app.ParseTimeOfDay(cfg.Schedule.At)
		if err != nil {
			a.Logger.Error().Err(err).Msg("ignoring schedule change")
			return
		}
		a.Scheduler.Reschedule(at)
	})
}

// Run starts the scheduler and HTTP server and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	if a.Config.Schedule.Enabled {
		a.Scheduler.Start()
	} else {
		a.Logger.Info().Msg("daily schedule disabled")
	}

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the scheduler and server, waiting for an
// in-flight billing run, then closes adapters.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.closeAdapters()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeAdapters() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("event publisher close error")
		}
		a.events = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
		a.redis = nil
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
