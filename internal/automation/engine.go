// Package automation runs automation action trees. The Engine walks the
// tree depth-first, branching on decision results and delegating side
// effects to the position, notification and tag collaborators. The Scheduler
// evaluates triggers and runs due automations.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// DefaultHistoryLimit bounds the retained execution history.
const DefaultHistoryLimit = 1000

// DecisionEvaluator resolves a decision config against a context.
type DecisionEvaluator interface {
	Evaluate(ctx context.Context, cfg *domain.DecisionConfig, dc *domain.DecisionContext) domain.DetailedDecisionResult
}

// ContextBuilder assembles the decision context for one branch node.
type ContextBuilder interface {
	Build(ctx context.Context, state domain.ExternalState, symbols []string) (domain.DecisionContext, error)
}

// Deps are the collaborators of the Engine. Decisions, Contexts and
// Positions are required; the rest are optional. Market supplies the price
// of opens and closes that carry none.
type Deps struct {
	Decisions     DecisionEvaluator
	Contexts      ContextBuilder
	Positions     domain.PositionStore
	Market        domain.MarketDataProvider
	Notifications domain.NotificationSink
	Tags          domain.TagSink
	BotState      domain.BotStateStore
	Recorder      domain.ExecutionRecorder
}

// Options tunes the Engine. Zero values select the defaults.
type Options struct {
	HistoryLimit int
	Clock        func() time.Time
}

type activeRun struct {
	info   domain.ActiveExecution
	ctx    context.Context
	cancel context.CancelFunc
}

// Engine executes automation definitions. It is safe for concurrent use;
// each run is synchronous within its own goroutine.
type Engine struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	active  map[string]*activeRun
	history *history

	async sync.WaitGroup
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		deps:    deps,
		now:     opts.Clock,
		logger:  logger.With(slog.String("component", "automation_engine")),
		active:  make(map[string]*activeRun),
		history: newHistory(opts.HistoryLimit),
	}
}

// Execute runs def to completion and returns its result. Cancelling ctx, or
// calling Cancel with the run's id, stops the walk at the next node boundary.
func (e *Engine) Execute(ctx context.Context, def *domain.AutomationDefinition, state domain.ExternalState) domain.ExecutionResult {
	return e.execute(ctx, uuid.NewString(), def, state)
}

// ExecuteAsync starts def in the background and returns its execution id
// together with a channel that receives the result once. The run is detached
// from ctx cancellation; use Cancel to stop it.
func (e *Engine) ExecuteAsync(ctx context.Context, def *domain.AutomationDefinition, state domain.ExternalState) (string, <-chan domain.ExecutionResult) {
	id := uuid.NewString()
	out := make(chan domain.ExecutionResult, 1)
	runCtx := context.WithoutCancel(ctx)
	e.register(runCtx, id, def, state)
	e.async.Add(1)
	go func() {
		defer e.async.Done()
		out <- e.execute(runCtx, id, def, state)
		close(out)
	}()
	return id, out
}

func (e *Engine) execute(ctx context.Context, id string, def *domain.AutomationDefinition, state domain.ExternalState) domain.ExecutionResult {
	started := e.now()
	if state.BotName == "" {
		state.BotName = def.BotName
	}
	if state.Now.IsZero() {
		state.Now = started
	}

	runCtx := e.register(ctx, id, def, state)
	e.setState(id, domain.ExecutionRunning)
	defer e.unregister(id)

	logger := e.logger.With(
		slog.String("execution_id", id),
		slog.String("automation", def.Name),
		slog.String("bot", state.BotName),
	)
	logger.Info("automation started", slog.String("reason", state.Reason))

	r := &run{
		engine: e,
		ctx:    runCtx,
		def:    def,
		state:  state,
		logger: logger,
		res: domain.ExecutionResult{
			ID:         id,
			Automation: def.Name,
			BotName:    state.BotName,
			Reason:     state.Reason,
			StartedAt:  started,
		},
	}
	r.walk(def.Actions, "")

	res := r.finish()
	res.Duration = e.now().Sub(started)

	e.history.add(res)
	e.bumpCounter(ctx, state.BotName, "executions")
	if e.deps.Recorder != nil {
		if err := e.deps.Recorder.RecordExecution(context.WithoutCancel(ctx), res); err != nil {
			logger.Warn("record execution failed", slog.String("error", err.Error()))
		}
	}
	logger.Info("automation finished",
		slog.String("result", string(res.Result)),
		slog.Int("attempted", res.ActionsAttempted),
		slog.Int("successful", res.ActionsSuccessful),
		slog.Duration("duration", res.Duration),
	)
	return res
}

// register tracks a run as PENDING. It is idempotent per id and returns the
// cancellable context of the run.
func (e *Engine) register(ctx context.Context, id string, def *domain.AutomationDefinition, state domain.ExternalState) context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ar, ok := e.active[id]; ok {
		return ar.ctx
	}
	runCtx, cancel := context.WithCancel(ctx)
	bot := state.BotName
	if bot == "" {
		bot = def.BotName
	}
	e.active[id] = &activeRun{
		info: domain.ActiveExecution{
			ID:         id,
			Automation: def.Name,
			BotName:    bot,
			State:      domain.ExecutionPending,
			StartedAt:  e.now(),
		},
		ctx:    runCtx,
		cancel: cancel,
	}
	return runCtx
}

func (e *Engine) setState(id string, st domain.ExecutionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ar, ok := e.active[id]; ok {
		ar.info.State = st
	}
}

func (e *Engine) unregister(id string) {
	e.mu.Lock()
	ar, ok := e.active[id]
	delete(e.active, id)
	e.mu.Unlock()
	if ok {
		ar.cancel()
	}
}

// Cancel requests cooperative cancellation of an active run. It reports
// whether the id was active.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	ar, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	ar.cancel()
	e.logger.Warn("execution cancel requested", slog.String("execution_id", id))
	return true
}

// ActiveExecutions lists in-flight runs.
func (e *Engine) ActiveExecutions() []domain.ActiveExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ActiveExecution, 0, len(e.active))
	for _, ar := range e.active {
		out = append(out, ar.info)
	}
	return out
}

// CleanupStale cancels runs active for longer than maxAge and returns how
// many were cancelled.
func (e *Engine) CleanupStale(maxAge time.Duration) int {
	now := e.now()
	e.mu.Lock()
	var stale []*activeRun
	for _, ar := range e.active {
		if now.Sub(ar.info.StartedAt) > maxAge {
			stale = append(stale, ar)
		}
	}
	e.mu.Unlock()
	for _, ar := range stale {
		ar.cancel()
		e.logger.Warn("stale execution cancelled",
			slog.String("execution_id", ar.info.ID),
			slog.String("automation", ar.info.Automation),
		)
	}
	return len(stale)
}

// History returns retained results newest first. Empty filters match all; a
// non-positive limit returns everything.
func (e *Engine) History(limit int, bot, automation string) []domain.ExecutionResult {
	return e.history.list(limit, bot, automation)
}

// Statistics aggregates the retained history.
func (e *Engine) Statistics() domain.ExecutionStatistics {
	st := e.history.stats()
	e.mu.Lock()
	st.ActiveExecutions = len(e.active)
	e.mu.Unlock()
	return st
}

// Close cancels every active run and waits for background runs to return.
func (e *Engine) Close() {
	e.mu.Lock()
	for _, ar := range e.active {
		ar.cancel()
	}
	e.mu.Unlock()
	e.async.Wait()
}

func (e *Engine) bumpCounter(ctx context.Context, bot, name string) {
	if e.deps.BotState == nil {
		return
	}
	if err := e.deps.BotState.Incr(context.WithoutCancel(ctx), bot, name, 1); err != nil {
		e.logger.Warn("bot counter update failed",
			slog.String("bot", bot),
			slog.String("counter", name),
			slog.String("error", err.Error()),
		)
	}
}

// errNoCollaborator marks an action whose collaborator is not configured.
var errNoCollaborator = errors.New("collaborator not configured")

func describeErr(err error) string {
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%v: %v", domain.ErrExecutionCanceled, err)
	}
	return err.Error()
}
