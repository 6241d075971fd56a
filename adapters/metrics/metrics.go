// Package metrics provides Prometheus metrics collection for carebill.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for carebill.
type Collector struct {
	// Billing metrics
	BillingRuns         *prometheus.CounterVec
	BillingRunDuration  *prometheus.HistogramVec
	InvoicesGenerated   *prometheus.CounterVec
	DuplicatesPrevented *prometheus.CounterVec
	ClientsSkipped      *prometheus.CounterVec
	ClientErrors        *prometheus.CounterVec
	ForecastTotal       *prometheus.GaugeVec

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		BillingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "billing_runs_total",
				Help:      "Total number of daily billing runs",
			},
			[]string{"family", "trigger"},
		),
		BillingRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "carebill",
				Name:      "billing_run_duration_seconds",
				Help:      "Daily billing run duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"family"},
		),
		InvoicesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "invoices_generated_total",
				Help:      "Total number of invoices written",
			},
			[]string{"family"},
		),
		DuplicatesPrevented: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "duplicates_prevented_total",
				Help:      "Total number of generation attempts answered with an existing invoice",
			},
			[]string{"family"},
		),
		ClientsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "clients_skipped_total",
				Help:      "Total number of clients skipped by billing runs",
			},
			[]string{"family", "reason"},
		),
		ClientErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "client_errors_total",
				Help:      "Total number of per-client failures during billing runs",
			},
			[]string{"family"},
		),
		ForecastTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "carebill",
				Name:      "forecast_total",
				Help:      "Expected revenue of the most recent preview window",
			},
			[]string{"family"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "carebill",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "carebill",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "carebill",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// RunCompleted records one finished billing run.
func (c *Collector) RunCompleted(family, trigger string, d time.Duration) {
	c.BillingRuns.WithLabelValues(family, trigger).Inc()
	c.BillingRunDuration.WithLabelValues(family).Observe(d.Seconds())
}

// InvoiceGenerated counts a newly written invoice.
func (c *Collector) InvoiceGenerated(family string) {
	c.InvoicesGenerated.WithLabelValues(family).Inc()
}

// DuplicatePrevented counts a generation that found today's invoice.
func (c *Collector) DuplicatePrevented(family string) {
	c.DuplicatesPrevented.WithLabelValues(family).Inc()
}

// ClientSkipped counts a skipped client.
func (c *Collector) ClientSkipped(family, reason string) {
	c.ClientsSkipped.WithLabelValues(family, reason).Inc()
}

// ClientFailed counts a per-client error.
func (c *Collector) ClientFailed(family string) {
	c.ClientErrors.WithLabelValues(family).Inc()
}

// Forecast sets the latest preview total.
func (c *Collector) Forecast(family string, total float64) {
	c.ForecastTotal.WithLabelValues(family).Set(total)
}

// ObserveRequest records an HTTP request.
func (c *Collector) ObserveRequest(method, path string, status int, d time.Duration) {
	c.RequestDuration.WithLabelValues(method, path, StatusClass(status)).Observe(d.Seconds())
}

// ConfigReloaded records the outcome of a config reload.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// StatusClass buckets an HTTP status into 2xx, 4xx and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
