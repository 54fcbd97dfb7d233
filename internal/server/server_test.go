package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/automation"
	"github.com/alanyoungcy/decisionbot/internal/decision"
	"github.com/alanyoungcy/decisionbot/internal/domain"
	"github.com/alanyoungcy/decisionbot/internal/server/handler"
	"github.com/alanyoungcy/decisionbot/internal/server/ws"
	"github.com/alanyoungcy/decisionbot/internal/store/memory"
)

const testAPIKey = "secret"

const scannerJSON = `{
  "bot_name": "bot-a",
  "trigger": {"type": "continuous", "automation_type": "scanner"},
  "actions": [{
    "type": "decision",
    "decision": {"recipe_type": "stock", "symbol": "SPY", "price_field": "last", "comparison": "above", "value": 440},
    "yes_path": [{"type": "open_position", "position": {"symbol": "SPY", "position_type": "put_spread", "quantity": 1}}]
  }]
}`

const stopLossJSON = `{
  "bot_name": "bot-a",
  "trigger": {"type": "manual"},
  "actions": [{
    "type": "conditional",
    "decision": {"recipe_type": "position", "position_reference": "current", "position_field": "unrealized_pnl", "comparison": "less_than", "value": 0},
    "yes_path": [{"type": "close_position"}]
  }]
}`

type testServer struct {
	srv       *httptest.Server
	positions *memory.PositionStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	records := memory.NewDecisionStore(0)
	decisions, err := decision.NewEngine(decision.Options{Recorder: records}, logger)
	require.NoError(t, err)

	positions := memory.NewPositionStore()
	bots := memory.NewBotState()
	tags := memory.NewTagSink()
	market := memory.NewMarketData(0)
	automations := memory.NewAutomationStore()
	executions := memory.NewExecutionStore(0)
	contexts := automation.NewStoreContextBuilder(market, positions, bots, nil)
	hub := ws.NewHub("test", logger)

	engine := automation.NewEngine(automation.Deps{
		Decisions: decisions,
		Contexts:  contexts,
		Positions: positions,
		Market:    market,
		Tags:      tags,
		BotState:  bots,
		Recorder:  automation.MultiRecorder{executions, hub},
	}, automation.Options{}, logger)
	t.Cleanup(engine.Close)

	h := Handlers{
		Health:      handler.NewHealthHandler(nil, logger),
		Decisions:   handler.NewDecisionHandler(decisions, contexts, records, logger),
		Automations: handler.NewAutomationHandler(automations, engine, nil, logger),
		Executions:  handler.NewExecutionHandler(engine, handler.ExecutionHandlerOptions{Store: executions}, logger),
		State:       handler.NewStateHandler(positions, bots, tags, market, logger),
	}
	srv := httptest.NewServer(newHandler(Config{APIKey: testAPIKey}, h, hub, nil, logger))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return &testServer{srv: srv, positions: positions}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, s.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(s.srv.URL + "/api/automations")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestEvaluateInlineContext(t *testing.T) {
	s := newTestServer(t)
	body := `{
	  "config": {"recipe_type": "stock", "symbol": "SPY", "comparison": "above", "value": 440},
	  "context": {"market_data": {"SPY": {"symbol": "SPY", "last": 450}}}
	}`
	code, out := s.do(t, http.MethodPost, "/api/decisions/evaluate", body)
	require.Equal(t, http.StatusOK, code, string(out))
	res := decode[domain.DetailedDecisionResult](t, out)
	assert.Equal(t, domain.ResultYes, res.Result)
	assert.Equal(t, domain.RecipeStock, res.RecipeKind)

	code, out = s.do(t, http.MethodGet, "/api/decisions/stats?window=1h", "")
	require.Equal(t, http.StatusOK, code)
	stats := decode[domain.DecisionStatistics](t, out)
	assert.Equal(t, 1, stats.TotalDecisions)

	code, out = s.do(t, http.MethodGet, "/api/decisions/records", "")
	require.Equal(t, http.StatusOK, code)
	recs := decode[struct {
		Records []domain.DecisionRecord `json:"records"`
	}](t, out)
	require.Len(t, recs.Records, 1)
	assert.Equal(t, domain.ResultYes, recs.Records[0].Result)

	code, _ = s.do(t, http.MethodGet, "/api/decisions/stats?window=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEvaluateBuildsLiveContext(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPut, "/api/market/SPY", `{"last": 430}`)
	require.Equal(t, http.StatusNoContent, code)

	code, out := s.do(t, http.MethodPost, "/api/decisions/evaluate",
		`{"bot_name": "bot-a", "config": {"recipe_type": "stock", "symbol": "SPY", "comparison": "above", "value": 440}}`)
	require.Equal(t, http.StatusOK, code, string(out))
	assert.Equal(t, domain.ResultNo, decode[domain.DetailedDecisionResult](t, out).Result)
}

func TestEvaluateRequiresConfig(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/decisions/evaluate", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTestConfigEndpoint(t *testing.T) {
	s := newTestServer(t)
	code, out := s.do(t, http.MethodPost, "/api/decisions/test",
		`{"recipe_type": "stock", "symbol": "SPY", "comparison": "above", "value": 440}`)
	require.Equal(t, http.StatusOK, code)
	report := decode[domain.ConfigTestReport](t, out)
	assert.True(t, report.Valid)
	assert.NotEmpty(t, report.Scenarios)

	code, out = s.do(t, http.MethodGet, "/api/decisions/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, decode[domain.DecisionStatistics](t, out).TotalDecisions)
}

func TestAutomationLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(t, http.MethodPut, "/api/automations/spy-scanner", scannerJSON)
	require.Equal(t, http.StatusOK, code, string(out))

	code, _ = s.do(t, http.MethodPut, "/api/automations/other", `{"name": "spy-scanner"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = s.do(t, http.MethodGet, "/api/automations/spy-scanner", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bot-a", decode[domain.AutomationDefinition](t, out).BotName)

	code, _ = s.do(t, http.MethodPut, "/api/market/SPY", `{"last": 450}`)
	require.Equal(t, http.StatusNoContent, code)

	code, out = s.do(t, http.MethodPost, "/api/automations/spy-scanner/execute", "")
	require.Equal(t, http.StatusOK, code, string(out))
	res := decode[domain.ExecutionResult](t, out)
	assert.Equal(t, domain.ExecutionCompleted, res.Result)
	assert.Equal(t, 1, res.PositionsOpened)

	code, out = s.do(t, http.MethodGet, "/api/positions?bot=bot-a&state=open", "")
	require.Equal(t, http.StatusOK, code)
	positions := decode[struct {
		Positions []domain.PositionSnapshot `json:"positions"`
	}](t, out)
	require.Len(t, positions.Positions, 1)
	assert.Equal(t, "put_spread", positions.Positions[0].Strategy)

	code, out = s.do(t, http.MethodGet, "/api/executions/"+res.ID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, res.ID, decode[domain.ExecutionResult](t, out).ID)

	code, out = s.do(t, http.MethodGet, "/api/executions?source=store", "")
	require.Equal(t, http.StatusOK, code)
	stored := decode[struct {
		Executions []domain.ExecutionResult `json:"executions"`
	}](t, out)
	require.Len(t, stored.Executions, 1)

	code, out = s.do(t, http.MethodGet, "/api/executions/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[domain.ExecutionStatistics](t, out).TotalExecutions)

	code, out = s.do(t, http.MethodGet, "/api/bots/bot-a", "")
	require.Equal(t, http.StatusOK, code)
	bot := decode[struct {
		Counters map[string]float64 `json:"counters"`
	}](t, out)
	assert.Equal(t, 1.0, bot.Counters["executions"])

	code, _ = s.do(t, http.MethodDelete, "/api/automations/spy-scanner", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(t, http.MethodGet, "/api/automations/spy-scanner", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStopLossClosesPositionMarkedToMarket(t *testing.T) {
	s := newTestServer(t)
	code, out := s.do(t, http.MethodPut, "/api/automations/spy-scanner", scannerJSON)
	require.Equal(t, http.StatusOK, code, string(out))
	code, out = s.do(t, http.MethodPut, "/api/automations/spy-stop", stopLossJSON)
	require.Equal(t, http.StatusOK, code, string(out))

	code, _ = s.do(t, http.MethodPut, "/api/market/SPY", `{"last": 450}`)
	require.Equal(t, http.StatusNoContent, code)
	code, out = s.do(t, http.MethodPost, "/api/automations/spy-scanner/execute", "")
	require.Equal(t, http.StatusOK, code, string(out))
	require.Equal(t, 1, decode[domain.ExecutionResult](t, out).PositionsOpened)

	// Above entry the stop does not fire.
	code, out = s.do(t, http.MethodPost, "/api/automations/spy-stop/execute", "")
	require.Equal(t, http.StatusOK, code, string(out))
	assert.Equal(t, 0, decode[domain.ExecutionResult](t, out).PositionsClosed)

	code, _ = s.do(t, http.MethodPut, "/api/market/SPY", `{"last": 400}`)
	require.Equal(t, http.StatusNoContent, code)

	open, err := s.positions.FindPosition(t.Context(), domain.PositionFilter{BotName: "bot-a", State: domain.PositionOpen})
	require.NoError(t, err)
	assert.Equal(t, 450.0, open.EntryPrice)
	assert.Equal(t, 400.0, open.CurrentPrice)
	assert.Equal(t, -50.0, open.UnrealizedPnL)

	code, out = s.do(t, http.MethodPost, "/api/automations/spy-stop/execute", "")
	require.Equal(t, http.StatusOK, code, string(out))
	res := decode[domain.ExecutionResult](t, out)
	assert.Equal(t, domain.ExecutionCompleted, res.Result)
	assert.Equal(t, 1, res.PositionsClosed)

	closed, err := s.positions.FindPosition(t.Context(), domain.PositionFilter{ID: open.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, closed.State)
	assert.Equal(t, -50.0, closed.RealizedPnL)
}

func TestExecuteDisabledAutomation(t *testing.T) {
	s := newTestServer(t)
	var def map[string]any
	require.NoError(t, json.Unmarshal([]byte(scannerJSON), &def))
	def["disabled"] = true
	body, err := json.Marshal(def)
	require.NoError(t, err)

	code, out := s.do(t, http.MethodPut, "/api/automations/spy-scanner", string(body))
	require.Equal(t, http.StatusOK, code, string(out))
	code, _ = s.do(t, http.MethodPost, "/api/automations/spy-scanner/execute", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestExecutionEndpointsWithoutRuns(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodDelete, "/api/executions/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/api/executions/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out := s.do(t, http.MethodGet, "/api/executions/active", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"active": []}`, string(out))

	code, _ = s.do(t, http.MethodGet, "/api/executions/feed", "")
	assert.Equal(t, http.StatusNotImplemented, code)

	code, _ = s.do(t, http.MethodPost, "/api/webhooks/hook-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestMarketRoundTrip(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/market/QQQ", "")
	assert.Equal(t, http.StatusNotFound, code)

	for _, body := range []string{`{"last": 380}`, `{"last": 381, "bid": 380.5, "ask": 381.5}`} {
		code, _ = s.do(t, http.MethodPut, "/api/market/QQQ", body)
		require.Equal(t, http.StatusNoContent, code)
	}
	code, out := s.do(t, http.MethodGet, "/api/market/QQQ", "")
	require.Equal(t, http.StatusOK, code)
	snap := decode[domain.MarketSnapshot](t, out)
	assert.Equal(t, "QQQ", snap.Symbol)
	assert.Equal(t, []float64{380, 381}, snap.History)
}
