// Package http exposes billing runs, forecasts and invoice history over HTTP.
package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/carebill/adapters/metrics"
	"github.com/artpar/carebill/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Version          string
	Metrics          *metrics.Collector
	MetricsHandler   http.Handler // served at /metrics when set
	Hasher           ports.Hasher
	TriggerTokenHash []byte // bcrypt hash; empty leaves run endpoints open
	RequestTimeout   time.Duration
}

// NewRouter creates the HTTP router.
func NewRouter(billing Billing, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", Health)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: cfg.Version, Service: "carebill"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	h := NewBillingHandler(billing, logger)
	r.Route("/billing", func(r chi.Router) {
		r.Get("/families", h.ListFamilies)
		r.Get("/{family}/preview", h.Preview)
		r.Get("/{family}/clients/{name}/invoices", h.History)

		r.Group(func(r chi.Router) {
			r.Use(NewTriggerAuth(cfg.Hasher, cfg.TriggerTokenHash))
			r.Post("/run", h.RunAll)
			r.Post("/{family}/run", h.RunFamily)
		})
	})

	return r
}

// Health returns a simple liveness check.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewMetricsMiddleware records request durations labelled by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isInternalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, path, status, time.Since(start))
		})
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if isInternalPath(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func isInternalPath(p string) bool {
	return strings.HasPrefix(p, "/health") || p == "/metrics"
}
