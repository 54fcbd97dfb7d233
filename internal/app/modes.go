package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/decisionbot/internal/automation"
	"github.com/alanyoungcy/decisionbot/internal/domain"
	"github.com/alanyoungcy/decisionbot/internal/server"
	"github.com/alanyoungcy/decisionbot/internal/server/handler"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 5 * time.Second

// RunMode starts the scheduler, the HTTP server and the periodic export.
func (a *App) RunMode(ctx context.Context, deps *Dependencies, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting run mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.scheduler.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, rt)
	a.startExportLoop(ctx, g, deps, rt)

	return g.Wait()
}

// ServeMode serves the HTTP API without the scheduler. Webhooks still run
// their automations, and stale runs are cancelled periodically.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps, rt)
	a.startExportLoop(ctx, g, deps, rt)

	staleAfter := a.cfg.Execution.StaleAfter.Duration
	if staleAfter > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(staleAfter / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := rt.engine.CleanupStale(staleAfter); n > 0 {
						a.logger.WarnContext(ctx, "stale executions cancelled", slog.Int("count", n))
					}
				}
			}
		})
	}

	return g.Wait()
}

// onceSummary is the report printed by OnceMode.
type onceSummary struct {
	Executions []domain.ExecutionResult   `json:"executions"`
	Statistics domain.ExecutionStatistics `json:"statistics"`
}

// OnceMode executes every enabled automation once, prints the results as
// JSON and returns. It fails when any run ends in ERROR.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting once mode")

	defs, err := deps.Automations.List(ctx)
	if err != nil {
		return fmt.Errorf("once mode: list automations: %w", err)
	}

	results := make([]domain.ExecutionResult, len(defs))
	ran := make([]bool, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Execution.MaxConcurrent)
	now := time.Now()
	for i := range defs {
		if defs[i].Disabled {
			continue
		}
		ran[i] = true
		g.Go(func() error {
			results[i] = rt.engine.Execute(gctx, &defs[i], domain.ExternalState{
				BotName: defs[i].BotName,
				Reason:  "once",
				Now:     now,
			})
			return nil
		})
	}
	_ = g.Wait()

	summary := onceSummary{Executions: []domain.ExecutionResult{}}
	failed := 0
	for i, res := range results {
		if !ran[i] {
			continue
		}
		if res.Result == domain.ExecutionError {
			failed++
		}
		summary.Executions = append(summary.Executions, res)
	}
	summary.Statistics = rt.engine.Statistics()

	if err := a.writeReport(summary); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("once mode: %d of %d automations failed", failed, len(summary.Executions))
	}
	return nil
}

// nodeReport is the TestConfig report of one decision node.
type nodeReport struct {
	Automation string                  `json:"automation"`
	BotName    string                  `json:"bot_name"`
	Path       string                  `json:"path"`
	Report     domain.ConfigTestReport `json:"report"`
}

// TestMode runs the scenario battery on every decision node of every
// automation and prints the reports as JSON. It fails when any config is
// invalid.
func (a *App) TestMode(ctx context.Context, deps *Dependencies, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting test mode")

	defs, err := deps.Automations.List(ctx)
	if err != nil {
		return fmt.Errorf("test mode: list automations: %w", err)
	}

	reports := []nodeReport{}
	invalid := 0
	for _, def := range defs {
		walkDecisions(def.Actions, "actions", func(path string, cfg *domain.DecisionConfig) {
			r := nodeReport{
				Automation: def.Name,
				BotName:    def.BotName,
				Path:       path,
				Report:     rt.decisions.TestConfig(cfg),
			}
			if !r.Report.Valid {
				invalid++
			}
			reports = append(reports, r)
		})
	}

	if err := a.writeReport(map[string]any{"decisions": reports}); err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("test mode: %d invalid decision configs", invalid)
	}
	return nil
}

// walkDecisions calls fn for every decision-bearing node under nodes, in
// document order. path addresses the node, e.g. "actions[0].yes_path[1]".
func walkDecisions(nodes []domain.ActionNode, path string, fn func(path string, cfg *domain.DecisionConfig)) {
	for i := range nodes {
		n := &nodes[i]
		p := path + "[" + strconv.Itoa(i) + "]"
		if n.Decision != nil {
			fn(p, n.Decision)
		}
		walkDecisions(n.YesPath, p+".yes_path", fn)
		walkDecisions(n.NoPath, p+".no_path", fn)
	}
}

func (a *App) writeReport(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write report: %w", err)
	}
	return nil
}

// startHTTPServer registers the API on g when the server is enabled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, a.handlers(deps, rt), rt.hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) handlers(deps *Dependencies, rt *runtime) server.Handlers {
	var feed domain.SignalBus
	if a.cfg.Execution.StreamExecutions {
		feed = deps.SignalBus
	}
	return server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Decisions:   handler.NewDecisionHandler(rt.decisions, rt.contexts, deps.Decisions, a.logger),
		Automations: handler.NewAutomationHandler(deps.Automations, rt.engine, rt.scheduler, a.logger),
		Executions: handler.NewExecutionHandler(rt.engine, handler.ExecutionHandlerOptions{
			Store:        deps.Executions,
			Feed:         feed,
			Stream:       automation.ExecutionStream,
			Exports:      deps.BlobReader,
			ExportPrefix: a.cfg.Execution.ExportPrefix,
		}, a.logger),
		State: handler.NewStateHandler(deps.Positions, deps.BotState, deps.Tags, deps.Market, a.logger),
	}
}

// startExportLoop periodically uploads the execution history as CSV and
// archives the decision and execution records of the elapsed interval.
func (a *App) startExportLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	interval := a.cfg.Execution.ExportInterval.Duration
	if interval <= 0 || deps.BlobWriter == nil {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				a.export(ctx, deps, rt, now, interval)
			}
		}
	})
}

func (a *App) export(ctx context.Context, deps *Dependencies, rt *runtime, now time.Time, interval time.Duration) {
	key := automation.ExportKey(a.cfg.Execution.ExportPrefix, now)
	if _, err := rt.engine.ExportHistory(ctx, deps.BlobWriter, key); err != nil {
		a.logger.ErrorContext(ctx, "history export failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if deps.Archiver == nil {
		return
	}

	since, until := archiveWindow(now, interval)
	decisions, err := deps.Archiver.ArchiveDecisions(ctx, since, until)
	if err != nil {
		a.logger.ErrorContext(ctx, "decision archive failed", slog.String("error", err.Error()))
	}
	executions, err := deps.Archiver.ArchiveExecutions(ctx, since, until)
	if err != nil {
		a.logger.ErrorContext(ctx, "execution archive failed", slog.String("error", err.Error()))
	}
	a.logger.InfoContext(ctx, "archive pass finished",
		slog.Time("since", since),
		slog.Time("until", until),
		slog.Int("decisions", decisions),
		slog.Int("executions", executions),
	)
}
