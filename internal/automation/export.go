package automation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

var exportHeader = []string{
	"automation_name", "execution_id", "bot_name", "result", "started_at",
	"duration_ms", "actions_attempted", "actions_successful", "success_rate",
	"positions_opened", "positions_closed", "decisions_evaluated", "error_message",
}

// ExportHistory writes the retained history as CSV to the blob store under
// key and returns the number of rows written. An empty history uploads
// nothing.
func (e *Engine) ExportHistory(ctx context.Context, w domain.BlobWriter, key string) (int, error) {
	results := e.history.snapshot()
	if len(results) == 0 {
		return 0, nil
	}
	data, err := encodeHistoryCSV(results)
	if err != nil {
		return 0, err
	}
	if err := w.Put(ctx, key, bytes.NewReader(data), "text/csv"); err != nil {
		return 0, fmt.Errorf("automation: export history: %w", err)
	}
	e.logger.Info("execution history exported", slog.String("key", key), slog.Int("rows", len(results)))
	return len(results), nil
}

// ExportKey names a history export taken at t.
func ExportKey(prefix string, t time.Time) string {
	return fmt.Sprintf("%s/executions-%s.csv", prefix, t.UTC().Format("20060102T150405Z"))
}

func encodeHistoryCSV(results []domain.ExecutionResult) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("automation: encode csv: %w", err)
	}
	for _, r := range results {
		rate := 0.0
		if r.ActionsAttempted > 0 {
			rate = float64(r.ActionsSuccessful) / float64(r.ActionsAttempted)
		}
		row := []string{
			r.Automation,
			r.ID,
			r.BotName,
			string(r.Result),
			r.StartedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			strconv.Itoa(r.ActionsAttempted),
			strconv.Itoa(r.ActionsSuccessful),
			strconv.FormatFloat(rate, 'f', 4, 64),
			strconv.Itoa(r.PositionsOpened),
			strconv.Itoa(r.PositionsClosed),
			strconv.Itoa(r.DecisionsEvaluated),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("automation: encode csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("automation: encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
