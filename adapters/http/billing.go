package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/artpar/carebill/app"
	"github.com/artpar/carebill/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MaxPreviewDays bounds the forecast window accepted over HTTP.
const MaxPreviewDays = 366

// Billing is the set of billing engines the handler serves.
type Billing interface {
	Engine(family string) (*app.Engine, bool)
	Families() []app.Family
	RunAll(ctx context.Context, trigger string) []app.RunSummary
}

// BillingHandler serves billing runs, previews and history.
type BillingHandler struct {
	billing Billing
	logger  zerolog.Logger
}

// NewBillingHandler creates a billing handler.
func NewBillingHandler(billing Billing, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger.With().Str("component", "http").Logger()}
}

// ListFamilies returns the configured billing families.
func (h *BillingHandler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	families := h.billing.Families()
	data := make([]map[string]string, len(families))
	for i, f := range families {
		data[i] = map[string]string{"name": f.Name, "service_tag": f.ServiceTag, "prefix": f.Prefix}
	}
	jsonapi.WriteData(w, http.StatusOK, data, jsonapi.Meta{"total": len(data)})
}

// RunAll runs every family as a manual trigger.
func (h *BillingHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	summaries := h.billing.RunAll(r.Context(), app.TriggerManual)
	h.logger.Info().Int("families", len(summaries)).Msg("manual billing run completed")
	jsonapi.WriteData(w, http.StatusOK, summaries, runMeta(summaries...))
}

// RunFamily runs one family as a manual trigger.
func (h *BillingHandler) RunFamily(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	summary := engine.RunDaily(r.Context(), app.TriggerManual)
	jsonapi.WriteData(w, http.StatusOK, summary, runMeta(summary))
}

// Preview returns the forecast for ?days=N (default window when absent).
func (h *BillingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > MaxPreviewDays {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("days", "days must be an integer between 0 and "+strconv.Itoa(MaxPreviewDays)))
			return
		}
		days = n
	}

	forecast, err := engine.Preview(r.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Str("family", engine.Family().Name).Msg("preview failed")
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("Client records could not be read"))
		return
	}
	jsonapi.WriteData(w, http.StatusOK, forecast, jsonapi.Meta{"count": len(forecast.Items)})
}

// History returns a client's invoices for the family, newest first.
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	entries := engine.History(r.Context(), name)
	jsonapi.WriteData(w, http.StatusOK, entries, jsonapi.Meta{"client": name, "count": len(entries)})
}

func (h *BillingHandler) engine(w http.ResponseWriter, r *http.Request) (*app.Engine, bool) {
	family := chi.URLParam(r, "family")
	engine, ok := h.billing.Engine(family)
	if !ok {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("billing family", family))
		return nil, false
	}
	return engine, true
}

func runMeta(summaries ...app.RunSummary) jsonapi.Meta {
	var billed, skipped, errs int
	for _, s := range summaries {
		billed += s.BilledCount
		skipped += s.SkippedCount
		errs += s.ErrorCount
	}
	return jsonapi.Meta{"billed": billed, "skipped": skipped, "errors": errs}
}
