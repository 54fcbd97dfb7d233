// Package handler implements the JSON endpoints of the decisionbot API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v and writes it with status. Marshal failures fall
// back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps domain errors to statuses and logs the rest.
func writeStoreError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidAutomation), errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrUnsupportedTriggerKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// decodeBody decodes a JSON body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts reads limit (default 50, max 500), offset, since and until
// (RFC 3339) from the query string.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 50}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = &t
	}
	return opts, nil
}

// pathParam returns a named path wildcard.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
