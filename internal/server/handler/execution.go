package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// ExecutionService exposes the engine's run tracking.
type ExecutionService interface {
	History(limit int, bot, automation string) []domain.ExecutionResult
	ActiveExecutions() []domain.ActiveExecution
	Statistics() domain.ExecutionStatistics
	Cancel(id string) bool
}

// ExecutionHandler serves execution history, cancellation and exports.
type ExecutionHandler struct {
	engine  ExecutionService
	store   domain.ExecutionStore
	feed    domain.SignalBus
	stream  string
	exports domain.BlobReader
	prefix  string
	logger  *slog.Logger
}

// ExecutionHandlerOptions carries the optional collaborators.
type ExecutionHandlerOptions struct {
	Store        domain.ExecutionStore
	Feed         domain.SignalBus
	Stream       string
	Exports      domain.BlobReader
	ExportPrefix string
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(engine ExecutionService, opts ExecutionHandlerOptions, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		engine:  engine,
		store:   opts.Store,
		feed:    opts.Feed,
		stream:  opts.Stream,
		exports: opts.Exports,
		prefix:  opts.ExportPrefix,
		logger:  logHandler(logger, "execution"),
	}
}

// List returns retained results newest first, filtered by ?bot= and
// ?automation=. With ?source=store it reads the persistent store instead.
// GET /api/executions
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var results []domain.ExecutionResult
	if q.Get("source") == "store" {
		if h.store == nil {
			writeError(w, http.StatusNotImplemented, "executions are not persisted")
			return
		}
		results, err = h.store.ListExecutions(r.Context(), opts)
		if err != nil {
			writeStoreError(w, r, h.logger, "list executions", err)
			return
		}
	} else {
		results = h.engine.History(opts.Limit, q.Get("bot"), q.Get("automation"))
	}
	if results == nil {
		results = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": results})
}

// Get returns one result from the in-memory history or the store.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	for _, res := range h.engine.History(0, "", "") {
		if res.ID == id {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	res, err := h.store.GetExecution(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, h.logger, "get execution", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Active lists in-flight runs.
// GET /api/executions/active
func (h *ExecutionHandler) Active(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": h.engine.ActiveExecutions()})
}

// Stats returns aggregate execution statistics.
// GET /api/executions/stats
func (h *ExecutionHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Statistics())
}

// Cancel requests cancellation of an active run.
// DELETE /api/executions/{id}
func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Cancel(pathParam(r, "id")) {
		writeError(w, http.StatusNotFound, "execution is not active")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Feed reads the durable execution stream after ?after=<stream id>.
// GET /api/executions/feed
func (h *ExecutionHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusNotImplemented, "execution stream is disabled")
		return
	}
	count := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && v > 0 {
		count = min(v, 1000)
	}
	msgs, err := h.feed.StreamRead(r.Context(), h.stream, r.URL.Query().Get("after"), count)
	if err != nil {
		writeStoreError(w, r, h.logger, "read execution stream", err)
		return
	}
	type entry struct {
		ID     string                 `json:"id"`
		Result domain.ExecutionResult `json:"result"`
	}
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		var e entry
		if err := json.Unmarshal(m.Payload, &e.Result); err != nil {
			h.logger.WarnContext(r.Context(), "skipping malformed stream entry", slog.String("id", m.ID))
			continue
		}
		e.ID = m.ID
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// Exports lists uploaded history exports.
// GET /api/exports
func (h *ExecutionHandler) Exports(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusNotImplemented, "object storage is disabled")
		return
	}
	infos, err := h.exports.List(r.Context(), h.prefix)
	if err != nil {
		writeStoreError(w, r, h.logger, "list exports", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": infos})
}
