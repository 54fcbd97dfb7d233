package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Engine defaults.
const (
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = 30 * time.Second
	DefaultMaxRecords    = 10000
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	CacheCapacity int
	CacheTTL      time.Duration
	MaxRecords    int
	Clock         func() time.Time
	// Recorder, when set, receives every live decision record.
	Recorder domain.DecisionRecorder
}

// Engine evaluates decision configs. It owns the leaf result cache and the
// statistics log; both are safe for concurrent use, so one Engine serves
// every automation run.
type Engine struct {
	evaluators map[domain.RecipeKind]Evaluator
	cache      *resultCache
	stats      *statsRecorder
	recorder   domain.DecisionRecorder
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine creates an Engine with the closed set of recipe evaluators.
func NewEngine(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = DefaultCacheCapacity
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	cache, err := newResultCache(opts.CacheCapacity, opts.CacheTTL, opts.Clock)
	if err != nil {
		return nil, err
	}
	return &Engine{
		evaluators: defaultEvaluators(),
		cache:      cache,
		stats:      newStatsRecorder(opts.MaxRecords),
		recorder:   opts.Recorder,
		now:        opts.Clock,
		logger:     logger.With(slog.String("component", "decision_engine")),
	}, nil
}

// Evaluate resolves cfg against dc. Failures never escape as errors: they
// become an ERROR result with a Failure classification. A nil context is a
// programming error and panics.
func (e *Engine) Evaluate(ctx context.Context, cfg *domain.DecisionConfig, dc *domain.DecisionContext) domain.DetailedDecisionResult {
	if dc == nil {
		panic("decision: Evaluate called with nil DecisionContext")
	}
	if cfg == nil {
		res := e.failure("", fmt.Errorf("%w: nil config", domain.ErrInvalidConfig))
		e.record(ctx, nil, res)
		return res
	}
	return e.evaluate(ctx, cfg, dc, 0, true)
}

// evaluate is the recursive pass. Isolated passes (live == false) neither
// read nor write the cache and leave statistics untouched.
func (e *Engine) evaluate(ctx context.Context, cfg *domain.DecisionConfig, dc *domain.DecisionContext, depth int, live bool) domain.DetailedDecisionResult {
	var res domain.DetailedDecisionResult
	switch {
	case depth > domain.MaxDecisionDepth:
		res = e.failure(cfg.Kind, fmt.Errorf("%w: depth %d", domain.ErrMaxDepthExceeded, depth))
	case cfg.Kind == domain.RecipeGrouped:
		res = e.evaluateGroup(ctx, cfg, dc, depth, live)
	default:
		res = e.evaluateLeaf(cfg, dc, live)
	}
	if live {
		e.record(ctx, cfg, res)
	}
	return res
}

func (e *Engine) evaluateGroup(ctx context.Context, cfg *domain.DecisionConfig, dc *domain.DecisionContext, depth int, live bool) domain.DetailedDecisionResult {
	g := cfg.Group
	if g == nil || len(g.Decisions) == 0 {
		return e.failure(domain.RecipeGrouped, fmt.Errorf("%w: grouped config has no decisions", domain.ErrInvalidConfig))
	}
	if g.Operator != domain.LogicAnd && g.Operator != domain.LogicOr {
		return e.failure(domain.RecipeGrouped, fmt.Errorf("%w: logic_operator %q", domain.ErrInvalidConfig, g.Operator))
	}

	// AND settles on the first NO and OR on the first YES. Otherwise an
	// ERROR child outranks the remaining outcome.
	settle := domain.ResultNo
	otherwise := domain.ResultYes
	if g.Operator == domain.LogicOr {
		settle, otherwise = domain.ResultYes, domain.ResultNo
	}

	var (
		confSum  float64
		allHits  = true
		failure  domain.FailureKind
		sawError bool
		reasons  = make([]string, 0, len(g.Decisions))
		result   domain.DecisionResult
	)
	for i := range g.Decisions {
		child := e.evaluate(ctx, &g.Decisions[i], dc, depth+1, live)
		confSum += child.Confidence
		allHits = allHits && child.CacheHit
		reasons = append(reasons, fmt.Sprintf("[%s] %s", child.Result, child.Reasoning))
		if child.Result == settle {
			result = settle
			break
		}
		if child.Result == domain.ResultError && !sawError {
			sawError = true
			failure = child.Failure
		}
	}
	if result == "" {
		result = otherwise
		if sawError {
			result = domain.ResultError
		}
	}
	if result != domain.ResultError {
		failure = domain.FailureNone
	}

	evaluated := len(reasons)
	return domain.DetailedDecisionResult{
		Result:      result,
		Confidence:  confSum / float64(evaluated),
		Reasoning:   fmt.Sprintf("%s(%d/%d): %s", strings.ToUpper(string(g.Operator)), evaluated, len(g.Decisions), strings.Join(reasons, "; ")),
		RecipeKind:  domain.RecipeGrouped,
		EvaluatedAt: e.now(),
		CacheHit:    allHits,
		Failure:     failure,
	}
}

func (e *Engine) evaluateLeaf(cfg *domain.DecisionConfig, dc *domain.DecisionContext, live bool) domain.DetailedDecisionResult {
	ev, ok := e.evaluators[cfg.Kind]
	if !ok {
		return e.failure(cfg.Kind, fmt.Errorf("%w: %q", domain.ErrUnsupportedRecipeKind, cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return e.failure(cfg.Kind, err)
	}

	compute := func() domain.DetailedDecisionResult {
		v, err := ev.Evaluate(dc, cfg)
		if err != nil {
			return e.failure(cfg.Kind, err)
		}
		res := domain.ResultNo
		if v.Yes {
			res = domain.ResultYes
		}
		return domain.DetailedDecisionResult{
			Result:      res,
			Confidence:  v.Confidence,
			Reasoning:   v.Reasoning,
			RecipeKind:  cfg.Kind,
			EvaluatedAt: e.now(),
		}
	}
	if !live {
		return compute()
	}

	key, err := cacheKey(cfg, dc)
	if err != nil {
		e.logger.Debug("cache bypassed", slog.String("error", err.Error()))
		return compute()
	}
	res, hit := e.cache.getOrCompute(key, compute)
	res.CacheHit = hit
	return res
}

func (e *Engine) failure(kind domain.RecipeKind, err error) domain.DetailedDecisionResult {
	return domain.DetailedDecisionResult{
		Result:      domain.ResultError,
		Reasoning:   err.Error(),
		RecipeKind:  kind,
		EvaluatedAt: e.now(),
		Failure:     classify(err),
	}
}

// classify maps an evaluation error onto a FailureKind.
func classify(err error) domain.FailureKind {
	switch {
	case errors.Is(err, domain.ErrMaxDepthExceeded):
		return domain.FailureDepthExceeded
	case errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrInsufficientData):
		return domain.FailureDataUnavailable
	default:
		return domain.FailureConfig
	}
}

func (e *Engine) record(ctx context.Context, cfg *domain.DecisionConfig, res domain.DetailedDecisionResult) {
	rec := domain.DecisionRecord{
		RecipeKind: res.RecipeKind,
		Result:     res.Result,
		Confidence: res.Confidence,
		CacheHit:   res.CacheHit,
		Failure:    res.Failure,
		Reasoning:  res.Reasoning,
		RecordedAt: e.now(),
	}
	e.stats.record(rec)
	if e.recorder == nil {
		return
	}
	if cfg != nil {
		rec.ConfigHash = configHash(cfg)
	}
	if err := e.recorder.RecordDecision(ctx, rec); err != nil {
		e.logger.Warn("record decision failed",
			slog.String("recipe_kind", string(rec.RecipeKind)),
			slog.String("error", err.Error()),
		)
	}
}

// configHash is a stable identifier for a config, used to correlate records.
func configHash(cfg *domain.DecisionConfig) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// Statistics aggregates the records of the trailing window. A non-positive
// window covers every retained record.
func (e *Engine) Statistics(window time.Duration) domain.DecisionStatistics {
	return e.stats.snapshot(window, e.now())
}

// ClearStatistics resets the counters and the record log.
func (e *Engine) ClearStatistics() {
	e.stats.reset()
	e.logger.Info("decision statistics cleared")
}

// ClearCache drops every cached leaf result.
func (e *Engine) ClearCache() {
	e.cache.purge()
	e.logger.Info("decision cache cleared")
}

// CacheLen reports the number of cached entries, expired ones included.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// SupportedRecipeKinds lists the evaluable recipe kinds in sorted order,
// including grouped.
func (e *Engine) SupportedRecipeKinds() []domain.RecipeKind {
	kinds := make([]domain.RecipeKind, 0, len(e.evaluators)+1)
	for k := range e.evaluators {
		kinds = append(kinds, k)
	}
	kinds = append(kinds, domain.RecipeGrouped)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
