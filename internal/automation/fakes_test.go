package automation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/decision"
	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Wednesday 10:30 UTC.
var testNow = time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC)

type memPositions struct {
	mu        sync.Mutex
	positions []domain.PositionSnapshot
	openErr   error
	next      int
	closes    []domain.CloseSpec
}

func (m *memPositions) FindPosition(_ context.Context, f domain.PositionFilter) (domain.PositionSnapshot, error) {
	list, _ := m.ListPositions(context.Background(), f)
	if len(list) == 0 {
		return domain.PositionSnapshot{}, domain.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (m *memPositions) ListPositions(_ context.Context, f domain.PositionFilter) ([]domain.PositionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PositionSnapshot
	for _, p := range m.positions {
		if f.ID != "" && p.ID != f.ID || f.BotName != "" && p.BotName != f.BotName ||
			f.Symbol != "" && p.Symbol != f.Symbol || f.State != "" && p.State != f.State {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memPositions) OpenPosition(_ context.Context, req domain.OpenPositionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return "", m.openErr
	}
	m.next++
	id := fmt.Sprintf("pos-%d", m.next)
	m.positions = append(m.positions, domain.PositionSnapshot{
		ID: id, BotName: req.BotName, Symbol: req.Symbol, Strategy: req.Strategy,
		State: domain.PositionOpen, Quantity: req.Quantity, EntryPrice: req.Price, OpenedAt: testNow,
	})
	return id, nil
}

func (m *memPositions) ClosePosition(_ context.Context, id string, spec domain.CloseSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, spec)
	for i := range m.positions {
		if m.positions[i].ID == id && m.positions[i].State == domain.PositionOpen {
			m.positions[i].State = domain.PositionClosed
			closed := testNow
			m.positions[i].ClosedAt = &closed
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memPositions) AddTags(_ context.Context, id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.positions {
		if m.positions[i].ID == id {
			m.positions[i].Tags = append(m.positions[i].Tags, tags...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memPositions) MarkPrice(_ context.Context, symbol string, price float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.positions {
		if m.positions[i].Symbol == symbol && m.positions[i].State == domain.PositionOpen {
			m.positions[i].Mark(price)
			n++
		}
	}
	return n, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []domain.NotificationPayload
	err      error
	onAccept func()
}

func (f *fakeNotifier) Accept(_ context.Context, p domain.NotificationPayload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	if f.onAccept != nil {
		f.onAccept()
	}
	return f.err
}

type fakeTags struct {
	mu       sync.Mutex
	payloads []domain.TagPayload
}

func (f *fakeTags) Accept(_ context.Context, p domain.TagPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeBotState struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (f *fakeBotState) Counter(_ context.Context, bot, name string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[bot+"/"+name], nil
}

func (f *fakeBotState) Counters(_ context.Context, bot string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (f *fakeBotState) Incr(_ context.Context, bot, name string, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counters == nil {
		f.counters = map[string]float64{}
	}
	f.counters[bot+"/"+name] += delta
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
}

func (f *fakeRecorder) RecordExecution(_ context.Context, res domain.ExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return nil
}

// staticContexts returns the same market for every build.
type staticContexts struct {
	market map[string]domain.MarketSnapshot
	err    error
}

func (s staticContexts) Build(_ context.Context, state domain.ExternalState, _ []string) (domain.DecisionContext, error) {
	if s.err != nil {
		return domain.DecisionContext{}, s.err
	}
	return domain.DecisionContext{MarketData: s.market, BotState: map[string]float64{}, EvaluatedAt: state.Now}, nil
}

type memBlob struct {
	puts map[string][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[path] = buf.Bytes()
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

type harness struct {
	engine    *Engine
	positions *memPositions
	notifier  *fakeNotifier
	tags      *fakeTags
	bots      *fakeBotState
	recorder  *fakeRecorder
}

func newDecisionEngine(t *testing.T) *decision.Engine {
	t.Helper()
	decisions, err := decision.NewEngine(decision.Options{Clock: func() time.Time { return testNow }}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return decisions
}

func newHarness(t *testing.T, spyLast float64) *harness {
	t.Helper()
	decisions := newDecisionEngine(t)
	h := &harness{
		positions: &memPositions{},
		notifier:  &fakeNotifier{},
		tags:      &fakeTags{},
		bots:      &fakeBotState{},
		recorder:  &fakeRecorder{},
	}
	h.engine = NewEngine(Deps{
		Decisions:     decisions,
		Contexts:      staticContexts{market: map[string]domain.MarketSnapshot{"SPY": {Symbol: "SPY", Last: spyLast}}},
		Positions:     h.positions,
		Notifications: h.notifier,
		Tags:          h.tags,
		BotState:      h.bots,
		Recorder:      h.recorder,
	}, Options{Clock: func() time.Time { return testNow }}, slog.New(slog.DiscardHandler))
	return h
}

func spyAbove(v float64) *domain.DecisionConfig {
	return &domain.DecisionConfig{Kind: domain.RecipeStock, Stock: &domain.StockParams{
		Symbol: "SPY", PriceField: "last",
		Comparison: domain.Comparison{Operator: domain.OpGreater, Value: domain.NumberPtr(v)},
	}}
}

func missingSymbol() *domain.DecisionConfig {
	cfg := spyAbove(1)
	cfg.Stock.Symbol = "NOPE"
	return cfg
}

func notification(msg string) domain.ActionNode {
	return domain.ActionNode{Type: domain.ActionNotification, Notification: &domain.NotificationSpec{Message: msg}}
}
