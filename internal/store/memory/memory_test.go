package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

func TestPositionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	clock := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	first, err := s.OpenPosition(ctx, domain.OpenPositionRequest{
		BotName: "alpha", PositionSpec: domain.PositionSpec{Symbol: "SPY", Quantity: 2, Price: 100},
	})
	require.NoError(t, err)
	second, err := s.OpenPosition(ctx, domain.OpenPositionRequest{
		BotName: "alpha", PositionSpec: domain.PositionSpec{Symbol: "QQQ", Quantity: 1, Price: 50},
	})
	require.NoError(t, err)

	latest, err := s.FindPosition(ctx, domain.PositionFilter{BotName: "alpha", State: domain.PositionOpen})
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)

	require.NoError(t, s.ClosePosition(ctx, first, domain.CloseSpec{Price: 110}))
	assert.ErrorIs(t, s.ClosePosition(ctx, first, domain.CloseSpec{}), domain.ErrNotFound)

	closed, err := s.FindPosition(ctx, domain.PositionFilter{ID: first})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, closed.State)
	assert.InDelta(t, 20, closed.RealizedPnL, 1e-9)
	require.NotNil(t, closed.ClosedAt)

	require.NoError(t, s.AddTags(ctx, second, []string{"b", "a"}))
	require.NoError(t, s.AddTags(ctx, second, []string{"a", "c"}))
	got, _ := s.FindPosition(ctx, domain.PositionFilter{ID: second})
	assert.Equal(t, []string{"a", "b", "c"}, got.Tags)

	open, err := s.ListPositions(ctx, domain.PositionFilter{State: domain.PositionOpen})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = s.FindPosition(ctx, domain.PositionFilter{BotName: "beta"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionStoreMarkPrice(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()

	priced, err := s.OpenPosition(ctx, domain.OpenPositionRequest{
		BotName: "alpha", PositionSpec: domain.PositionSpec{Symbol: "SPY", Quantity: 2, Price: 450},
	})
	require.NoError(t, err)
	unpriced, err := s.OpenPosition(ctx, domain.OpenPositionRequest{
		BotName: "alpha", PositionSpec: domain.PositionSpec{Symbol: "SPY", Quantity: 1},
	})
	require.NoError(t, err)
	other, err := s.OpenPosition(ctx, domain.OpenPositionRequest{
		BotName: "alpha", PositionSpec: domain.PositionSpec{Symbol: "QQQ", Quantity: 1, Price: 380},
	})
	require.NoError(t, err)

	n, err := s.MarkPrice(ctx, "SPY", 440)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.MarkPrice(ctx, "SPY", 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, _ := s.FindPosition(ctx, domain.PositionFilter{ID: priced})
	assert.Equal(t, 440.0, got.CurrentPrice)
	assert.InDelta(t, -20, got.UnrealizedPnL, 1e-9)
	got, _ = s.FindPosition(ctx, domain.PositionFilter{ID: unpriced})
	assert.Equal(t, 440.0, got.EntryPrice)
	assert.Zero(t, got.UnrealizedPnL)
	got, _ = s.FindPosition(ctx, domain.PositionFilter{ID: other})
	assert.Equal(t, 380.0, got.CurrentPrice)

	// A close without a price realises the marked PnL.
	require.NoError(t, s.ClosePosition(ctx, priced, domain.CloseSpec{}))
	got, _ = s.FindPosition(ctx, domain.PositionFilter{ID: priced})
	assert.InDelta(t, -20, got.RealizedPnL, 1e-9)
	_, err = s.MarkPrice(ctx, "SPY", 500)
	require.NoError(t, err)
	got, _ = s.FindPosition(ctx, domain.PositionFilter{ID: priced})
	assert.Equal(t, 440.0, got.CurrentPrice, "closed positions are not re-marked")
}

func TestAutomationStore(t *testing.T) {
	ctx := context.Background()
	s := NewAutomationStore()
	require.NoError(t, s.Upsert(ctx, domain.AutomationDefinition{Name: "b"}))
	require.NoError(t, s.Upsert(ctx, domain.AutomationDefinition{Name: "a"}))

	defs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), domain.ErrNotFound)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBotState(t *testing.T) {
	ctx := context.Background()
	b := NewBotState()
	v, err := b.Counter(ctx, "alpha", "executions")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, b.Incr(ctx, "alpha", "executions", 1))
	require.NoError(t, b.Incr(ctx, "alpha", "executions", 2))
	all, err := b.Counters(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"executions": 3}, all)

	all["executions"] = 99
	v, _ = b.Counter(ctx, "alpha", "executions")
	assert.Equal(t, 3.0, v)
}

func TestMarketData(t *testing.T) {
	ctx := context.Background()
	m := NewMarketData(3)

	_, err := m.Snapshot(ctx, "SPY")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, m.SetSnapshot(ctx, domain.MarketSnapshot{Symbol: "SPY", History: []float64{1, 2}, Last: 2}))
	for _, p := range []float64{3, 4} {
		require.NoError(t, m.SetSnapshot(ctx, domain.MarketSnapshot{Symbol: "SPY", Last: p, Bid: p - 0.5, Ask: p + 0.5}))
	}

	hist, err := m.PriceHistory(ctx, "SPY", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, hist)

	hist, err = m.PriceHistory(ctx, "SPY", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, hist)

	mid, err := m.Price(ctx, "SPY", "mid")
	require.NoError(t, err)
	assert.Equal(t, 4.0, mid)

	snap, err := m.Snapshot(ctx, "SPY")
	require.NoError(t, err)
	assert.Nil(t, snap.History)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestTagSink(t *testing.T) {
	ctx := context.Background()
	s := NewTagSink()
	require.NoError(t, s.Accept(ctx, domain.TagPayload{Target: domain.TagTargetBot, BotName: "alpha", Tags: []string{"z", "a"}}))
	require.NoError(t, s.Accept(ctx, domain.TagPayload{Target: domain.TagTargetPosition, BotName: "alpha", PositionID: "p1", Tags: []string{"q"}}))

	tags, err := s.BotTags(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, tags)
}

func TestExecutionStoreWindowAndPaging(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore(3)
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.RecordExecution(ctx, domain.ExecutionResult{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, s.RecordExecution(ctx, domain.ExecutionResult{ID: "d", Reason: "dup"}))

	_, err := s.GetExecution(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound, "oldest run is evicted")

	all, err := s.ListExecutions(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "d", all[0].ID)
	assert.Empty(t, all[0].Reason)

	since := base.Add(2 * time.Hour)
	recent, err := s.ListExecutions(ctx, domain.ListOpts{Since: &since, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].ID)
}

func TestDecisionStoreNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewDecisionStore(0)
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordDecision(ctx, domain.DecisionRecord{Result: domain.ResultNo, RecordedAt: base}))
	require.NoError(t, s.RecordDecision(ctx, domain.DecisionRecord{Result: domain.ResultYes, RecordedAt: base.Add(time.Minute)}))

	recs, err := s.ListDecisions(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.ResultYes, recs[0].Result)

	recs, err = s.ListDecisions(ctx, domain.ListOpts{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
