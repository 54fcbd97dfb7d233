package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// DecisionService is the decision engine surface the API needs.
type DecisionService interface {
	Evaluate(ctx context.Context, cfg *domain.DecisionConfig, dc *domain.DecisionContext) domain.DetailedDecisionResult
	TestConfig(cfg *domain.DecisionConfig) domain.ConfigTestReport
	Statistics(window time.Duration) domain.DecisionStatistics
	ClearCache()
	ClearStatistics()
	SupportedRecipeKinds() []domain.RecipeKind
}

// ContextBuilder assembles a live decision context for a bot.
type ContextBuilder interface {
	Build(ctx context.Context, state domain.ExternalState, symbols []string) (domain.DecisionContext, error)
}

// DecisionHandler serves the decision endpoints.
type DecisionHandler struct {
	engine   DecisionService
	contexts ContextBuilder
	records  domain.DecisionRecordStore
	logger   *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler. contexts and records may
// be nil; evaluation then requires an inline context and record listing
// is unavailable.
func NewDecisionHandler(engine DecisionService, contexts ContextBuilder, records domain.DecisionRecordStore, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{engine: engine, contexts: contexts, records: records, logger: logHandler(logger, "decision")}
}

type evaluateRequest struct {
	Config  *domain.DecisionConfig  `json:"config"`
	BotName string                  `json:"bot_name"`
	Context *domain.DecisionContext `json:"context,omitempty"`
}

// Evaluate resolves a config against an inline context, or against a live
// context built for bot_name.
// POST /api/decisions/evaluate
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, "config is required")
		return
	}

	dc := req.Context
	if dc == nil {
		if h.contexts == nil {
			writeError(w, http.StatusBadRequest, "context is required")
			return
		}
		built, err := h.contexts.Build(r.Context(), domain.ExternalState{
			BotName: req.BotName,
			Reason:  "api",
			Now:     time.Now(),
		}, req.Config.Symbols())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "build context failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "failed to build decision context")
			return
		}
		dc = &built
	}

	writeJSON(w, http.StatusOK, h.engine.Evaluate(r.Context(), req.Config, dc))
}

// Test runs a config against the synthetic scenarios without touching the
// cache or statistics.
// POST /api/decisions/test
func (h *DecisionHandler) Test(w http.ResponseWriter, r *http.Request) {
	var cfg domain.DecisionConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.TestConfig(&cfg))
}

// Stats returns statistics over ?window= (default 1h).
// GET /api/decisions/stats
func (h *DecisionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, h.engine.Statistics(window))
}

// ClearCache drops every cached decision.
// DELETE /api/decisions/cache
func (h *DecisionHandler) ClearCache(w http.ResponseWriter, _ *http.Request) {
	h.engine.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// ClearStats resets the decision statistics.
// DELETE /api/decisions/stats
func (h *DecisionHandler) ClearStats(w http.ResponseWriter, _ *http.Request) {
	h.engine.ClearStatistics()
	w.WriteHeader(http.StatusNoContent)
}

// RecipeKinds lists the supported recipe kinds.
// GET /api/decisions/kinds
func (h *DecisionHandler) RecipeKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recipe_kinds": h.engine.SupportedRecipeKinds()})
}

// Records lists persisted decision records, newest first.
// GET /api/decisions/records
func (h *DecisionHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusNotImplemented, "decision records are not persisted")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.records.ListDecisions(r.Context(), opts)
	if err != nil {
		writeStoreError(w, r, h.logger, "list decisions", err)
		return
	}
	if recs == nil {
		recs = []domain.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}
