package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// AutomationRunner executes automations on demand.
type AutomationRunner interface {
	Execute(ctx context.Context, def *domain.AutomationDefinition, state domain.ExternalState) domain.ExecutionResult
	ExecuteAsync(ctx context.Context, def *domain.AutomationDefinition, state domain.ExternalState) (string, <-chan domain.ExecutionResult)
}

// WebhookDispatcher runs the automations bound to a webhook id.
type WebhookDispatcher interface {
	Webhook(ctx context.Context, id string) (int, error)
}

// AutomationHandler serves automation definitions and manual execution.
type AutomationHandler struct {
	store    domain.AutomationStore
	runner   AutomationRunner
	webhooks WebhookDispatcher
	logger   *slog.Logger
}

// NewAutomationHandler creates an AutomationHandler. webhooks may be nil
// when no scheduler runs.
func NewAutomationHandler(store domain.AutomationStore, runner AutomationRunner, webhooks WebhookDispatcher, logger *slog.Logger) *AutomationHandler {
	return &AutomationHandler{store: store, runner: runner, webhooks: webhooks, logger: logHandler(logger, "automation")}
}

// List returns every automation definition.
// GET /api/automations
func (h *AutomationHandler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.List(r.Context())
	if err != nil {
		writeStoreError(w, r, h.logger, "list automations", err)
		return
	}
	if defs == nil {
		defs = []domain.AutomationDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": defs})
}

// Get returns one definition.
// GET /api/automations/{name}
func (h *AutomationHandler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := h.store.Get(r.Context(), pathParam(r, "name"))
	if err != nil {
		writeStoreError(w, r, h.logger, "get automation", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// Put validates and stores a definition under the path name.
// PUT /api/automations/{name}
func (h *AutomationHandler) Put(w http.ResponseWriter, r *http.Request) {
	var def domain.AutomationDefinition
	if err := decodeBody(r, &def); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := pathParam(r, "name")
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		writeError(w, http.StatusBadRequest, "name does not match path")
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Upsert(r.Context(), def); err != nil {
		writeStoreError(w, r, h.logger, "upsert automation", err)
		return
	}
	h.logger.InfoContext(r.Context(), "automation saved", slog.String("automation", def.Name))
	writeJSON(w, http.StatusOK, def)
}

// Delete removes a definition.
// DELETE /api/automations/{name}
func (h *AutomationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), pathParam(r, "name")); err != nil {
		writeStoreError(w, r, h.logger, "delete automation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Execute runs a definition now. With ?async=true it answers 202 with the
// execution id; otherwise it waits for the result.
// POST /api/automations/{name}/execute
func (h *AutomationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	def, err := h.store.Get(r.Context(), pathParam(r, "name"))
	if err != nil {
		writeStoreError(w, r, h.logger, "get automation", err)
		return
	}
	if def.Disabled {
		writeError(w, http.StatusConflict, "automation is disabled")
		return
	}
	state := domain.ExternalState{BotName: def.BotName, Reason: "manual", Now: time.Now()}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		id, _ := h.runner.ExecuteAsync(r.Context(), &def, state)
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": id})
		return
	}
	writeJSON(w, http.StatusOK, h.runner.Execute(r.Context(), &def, state))
}

// Webhook triggers every automation bound to the webhook id.
// POST /api/webhooks/{id}
func (h *AutomationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	id := pathParam(r, "id")
	n, err := h.webhooks.Webhook(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, h.logger, "webhook", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"webhook": id, "triggered": n})
}
