package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Scheduler defaults.
const (
	DefaultSchedulerInterval = time.Minute
	DefaultTriggerCooldown   = 30 * time.Second
	DefaultStaleAfter        = 30 * time.Minute
	DefaultMaxConcurrent     = 8

	schedulerLockKey = "decisionbot:scheduler"
)

// AutomationSource lists the automations the scheduler considers.
type AutomationSource interface {
	List(ctx context.Context) ([]domain.AutomationDefinition, error)
}

// SchedulerOptions tunes the Scheduler. Zero values select the defaults.
type SchedulerOptions struct {
	Interval      time.Duration
	Cooldown      time.Duration
	StaleAfter    time.Duration
	MaxConcurrent int
	Location      *time.Location
	Clock         func() time.Time
}

// Scheduler periodically evaluates automation triggers and runs the due
// automations concurrently. When a LockManager is supplied, only one
// instance ticks at a time.
type Scheduler struct {
	engine    *Engine
	source    AutomationSource
	positions domain.PositionStore
	lock      domain.LockManager
	opts      SchedulerOptions
	cooldown  *cooldown
	logger    *slog.Logger

	mu       sync.Mutex
	lastRun  map[string]time.Time
	lastTick time.Time
}

// NewScheduler creates a Scheduler. positions and lock may be nil.
func NewScheduler(engine *Engine, source AutomationSource, positions domain.PositionStore, lock domain.LockManager, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSchedulerInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultTriggerCooldown
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scheduler{
		engine:    engine,
		source:    source,
		positions: positions,
		lock:      lock,
		opts:      opts,
		cooldown:  newCooldown(opts.Cooldown, opts.Clock),
		logger:    logger.With(slog.String("component", "scheduler")),
		lastRun:   make(map[string]time.Time),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("interval", s.opts.Interval))
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick evaluates every enabled automation once and runs those whose trigger
// fires. It returns the number of automations run.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if s.lock != nil {
		unlock, err := s.lock.Acquire(ctx, schedulerLockKey, s.opts.Interval)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Debug("scheduler tick skipped, lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("scheduler: acquire lock: %w", err)
		}
		defer unlock()
	}

	if n := s.engine.CleanupStale(s.opts.StaleAfter); n > 0 {
		s.logger.Warn("stale executions cancelled", slog.Int("count", n))
	}
	s.cooldown.cleanup()

	defs, err := s.source.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list automations: %w", err)
	}

	now := s.opts.Clock().In(s.opts.Location)
	s.mu.Lock()
	since := s.lastTick
	s.lastTick = now
	s.mu.Unlock()

	return s.runDue(ctx, defs, func(def *domain.AutomationDefinition) (bool, string) {
		if def.Trigger.Type == domain.TriggerManual || def.Trigger.Type == domain.TriggerWebhook {
			return false, ""
		}
		in, err := s.triggerInput(ctx, def, now, since)
		if err != nil {
			s.logger.Warn("trigger input unavailable",
				slog.String("automation", def.Name),
				slog.String("error", err.Error()),
			)
			return false, ""
		}
		return ShouldTrigger(def.Trigger, in)
	})
}

// Webhook runs every enabled automation whose webhook trigger matches id and
// returns how many ran.
func (s *Scheduler) Webhook(ctx context.Context, id string) (int, error) {
	defs, err := s.source.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list automations: %w", err)
	}
	now := s.opts.Clock().In(s.opts.Location)
	return s.runDue(ctx, defs, func(def *domain.AutomationDefinition) (bool, string) {
		if def.Trigger.Type != domain.TriggerWebhook {
			return false, ""
		}
		return ShouldTrigger(def.Trigger, TriggerInput{Now: now, WebhookID: id})
	})
}

func (s *Scheduler) runDue(ctx context.Context, defs []domain.AutomationDefinition, due func(*domain.AutomationDefinition) (bool, string)) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)

	fired := 0
	for i := range defs {
		def := &defs[i]
		if def.Disabled {
			continue
		}
		ok, reason := due(def)
		if !ok {
			continue
		}
		key := def.BotName + "/" + def.Name
		if !s.cooldown.claim(key) {
			s.logger.Debug("trigger in cooldown", slog.String("automation", key))
			continue
		}
		fired++
		s.mu.Lock()
		s.lastRun[key] = s.opts.Clock()
		s.mu.Unlock()

		g.Go(func() error {
			s.engine.Execute(gctx, def, domain.ExternalState{
				BotName: def.BotName,
				Reason:  reason,
				Now:     s.opts.Clock().In(s.opts.Location),
			})
			return nil
		})
	}
	return fired, g.Wait()
}

func (s *Scheduler) triggerInput(ctx context.Context, def *domain.AutomationDefinition, now, since time.Time) (TriggerInput, error) {
	s.mu.Lock()
	in := TriggerInput{
		Now:           now,
		PositionLimit: def.PositionLimit,
		LastRun:       s.lastRun[def.BotName+"/"+def.Name],
	}
	s.mu.Unlock()

	switch def.Trigger.Type {
	case domain.TriggerContinuous, domain.TriggerPositionOpened, domain.TriggerPositionClosed:
	default:
		return in, nil
	}
	if s.positions == nil {
		return in, nil
	}
	positions, err := s.positions.ListPositions(ctx, domain.PositionFilter{BotName: def.BotName})
	if err != nil {
		return in, err
	}
	for i := range positions {
		p := &positions[i]
		if p.State == domain.PositionOpen {
			in.OpenPositions++
		}
		if since.IsZero() {
			continue
		}
		if p.OpenedAt.After(since) && (in.RecentlyOpened == nil || p.OpenedAt.After(in.RecentlyOpened.OpenedAt)) {
			in.RecentlyOpened = p
		}
		if p.ClosedAt != nil && p.ClosedAt.After(since) && (in.RecentlyClosed == nil || p.ClosedAt.After(*in.RecentlyClosed.ClosedAt)) {
			in.RecentlyClosed = p
		}
	}
	return in, nil
}
