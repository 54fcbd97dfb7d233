// Package app provides the top-level application lifecycle of decisionbot.
// It wires the stores, caches, blob storage and notification channels, builds
// the decision and automation engines on top of them, and starts the
// goroutines of the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/decisionbot/internal/automation"
	"github.com/alanyoungcy/decisionbot/internal/config"
	"github.com/alanyoungcy/decisionbot/internal/decision"
	"github.com/alanyoungcy/decisionbot/internal/domain"
	"github.com/alanyoungcy/decisionbot/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App from the given configuration and logger. Reports of
// the once and test modes are written to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// runtime holds the engines built on top of the wired dependencies.
type runtime struct {
	decisions *decision.Engine
	contexts  *automation.StoreContextBuilder
	engine    *automation.Engine
	scheduler *automation.Scheduler
	hub       *ws.Hub
}

// Run is the main entry point. It wires all dependencies, builds the
// engines, loads the automation definitions and runs the configured mode
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	rt, err := a.build(deps)
	if err != nil {
		return fmt.Errorf("app: build engines: %w", err)
	}
	a.closers = append(a.closers, rt.hub.Close, rt.engine.Close)

	if err := a.loadAutomations(ctx, deps.Automations); err != nil {
		return fmt.Errorf("app: load automations: %w", err)
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "run":
		return a.RunMode(ctx, deps, rt)
	case "serve":
		return a.ServeMode(ctx, deps, rt)
	case "once":
		return a.OnceMode(ctx, deps, rt)
	case "test":
		return a.TestMode(ctx, deps, rt)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// build constructs the engines, the WebSocket hub and the scheduler.
func (a *App) build(deps *Dependencies) (*runtime, error) {
	loc, err := a.cfg.Execution.Location()
	if err != nil {
		return nil, err
	}

	opts := decision.Options{
		CacheCapacity: a.cfg.Decision.CacheCapacity,
		CacheTTL:      a.cfg.Decision.CacheTTL.Duration,
		MaxRecords:    a.cfg.Decision.MaxRecords,
	}
	if a.cfg.Decision.RecordDecisions {
		opts.Recorder = deps.Decisions
	}
	decisions, err := decision.NewEngine(opts, a.logger)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(a.cfg.Mode, a.logger)
	recorders := automation.MultiRecorder{deps.Executions, hub}
	if deps.SignalBus != nil && a.cfg.Execution.StreamExecutions {
		recorders = append(recorders, automation.NewStreamRecorder(deps.SignalBus, automation.ExecutionStream))
	}

	// A nil *Notifier must not become a non-nil interface.
	var notifications domain.NotificationSink
	if deps.Notifier != nil {
		notifications = deps.Notifier
	}

	contexts := automation.NewStoreContextBuilder(deps.Market, deps.Positions, deps.BotState, loc)
	engine := automation.NewEngine(automation.Deps{
		Decisions:     decisions,
		Contexts:      contexts,
		Positions:     deps.Positions,
		Market:        deps.Market,
		Notifications: notifications,
		Tags:          deps.Tags,
		BotState:      deps.BotState,
		Recorder:      recorders,
	}, automation.Options{HistoryLimit: a.cfg.Execution.HistoryLimit}, a.logger)

	scheduler := automation.NewScheduler(engine, deps.Automations, deps.Positions, deps.LockManager, automation.SchedulerOptions{
		Interval:      a.cfg.Execution.SchedulerInterval.Duration,
		Cooldown:      a.cfg.Execution.TriggerCooldown.Duration,
		StaleAfter:    a.cfg.Execution.StaleAfter.Duration,
		MaxConcurrent: a.cfg.Execution.MaxConcurrent,
		Location:      loc,
	}, a.logger)

	return &runtime{
		decisions: decisions,
		contexts:  contexts,
		engine:    engine,
		scheduler: scheduler,
		hub:       hub,
	}, nil
}

// loadAutomations reads the definitions directory and seeds the store with
// it. Seeding always happens when the store lives in memory, since nothing
// else would populate it.
func (a *App) loadAutomations(ctx context.Context, store domain.AutomationStore) error {
	dir := a.cfg.Execution.AutomationsDir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		a.logger.WarnContext(ctx, "automations directory not found", slog.String("dir", dir))
		return nil
	}

	defs, err := automation.LoadDefinitions(dir)
	if err != nil {
		return err
	}
	if !a.cfg.Execution.SeedStore && a.cfg.Postgres.Enabled {
		a.logger.InfoContext(ctx, "automation seeding disabled", slog.Int("definitions", len(defs)))
		return nil
	}
	if err := automation.SeedStore(ctx, store, defs); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "automations seeded", slog.String("dir", dir), slog.Int("definitions", len(defs)))
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
