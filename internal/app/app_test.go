package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/config"
	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const spyScanner = `{
  "name": "spy-scanner",
  "bot_name": "bot-a",
  "trigger": {"type": "continuous", "automation_type": "scanner"},
  "actions": [{
    "type": "decision",
    "decision": {"recipe_type": "stock", "symbol": "SPY", "comparison": "above", "value": 440},
    "yes_path": [{
      "type": "conditional",
      "decision": {"recipe_type": "bot", "bot_field": "executions", "comparison": "less_than", "value": 5},
      "yes_path": [{"type": "open_position", "position": {"symbol": "SPY", "quantity": 1}}]
    }],
    "no_path": [{"type": "tag_bot", "tags": ["idle"]}]
  }]
}`

func newOfflineApp(t *testing.T, mode string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spy.json"), []byte(spyScanner), 0o644))

	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Postgres.Enabled = false
	cfg.Redis.Enabled = false
	cfg.S3.Enabled = false
	cfg.Server.Enabled = false
	cfg.Execution.AutomationsDir = dir
	cfg.Execution.Timezone = "UTC"
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	a := New(&cfg, slog.New(slog.DiscardHandler))
	a.out = &out
	t.Cleanup(a.Close)
	return a, &out
}

func TestTestModeReportsEveryDecisionNode(t *testing.T) {
	a, out := newOfflineApp(t, "test")
	require.NoError(t, a.Run(t.Context()))

	var report struct {
		Decisions []nodeReport `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Decisions, 2)
	assert.Equal(t, "actions[0]", report.Decisions[0].Path)
	assert.Equal(t, "actions[0].yes_path[0]", report.Decisions[1].Path)
	for _, d := range report.Decisions {
		assert.Equal(t, "spy-scanner", d.Automation)
		assert.True(t, d.Report.Valid, d.Report.Error)
	}
}

func TestOnceModeRunsEnabledAutomations(t *testing.T) {
	a, out := newOfflineApp(t, "once")
	err := a.Run(t.Context())

	var summary onceSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Len(t, summary.Executions, 1)

	// No market data is loaded, so SPY is unavailable and the run ends in
	// ERROR; the summary is still printed.
	res := summary.Executions[0]
	assert.Equal(t, "spy-scanner", res.Automation)
	assert.Equal(t, domain.ExecutionError, res.Result)
	assert.ErrorContains(t, err, "1 of 1 automations failed")
	assert.Equal(t, 1, summary.Statistics.TotalExecutions)
}

func TestUnsupportedMode(t *testing.T) {
	a, _ := newOfflineApp(t, "test")
	a.cfg.Mode = "trade"
	assert.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}

func TestWalkDecisions(t *testing.T) {
	var def domain.AutomationDefinition
	require.NoError(t, json.Unmarshal([]byte(spyScanner), &def))

	var paths []string
	walkDecisions(def.Actions, "actions", func(path string, _ *domain.DecisionConfig) {
		paths = append(paths, path)
	})
	assert.Equal(t, []string{"actions[0]", "actions[0].yes_path[0]"}, paths)
}

func TestArchiveWindow(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 42, 0, 0, time.UTC)
	since, until := archiveWindow(now, 24*time.Hour)
	assert.Equal(t, time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC), until)
	assert.Equal(t, time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC), since)
}
