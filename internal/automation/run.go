package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// run is the state of one depth-first walk.
type run struct {
	engine *Engine
	ctx    context.Context
	def    *domain.AutomationDefinition
	state  domain.ExternalState
	logger *slog.Logger
	res    domain.ExecutionResult

	lastBranch domain.DecisionResult
	canceled   bool
}

// walk visits nodes in order. Cancellation is observed between siblings.
func (r *run) walk(nodes []domain.ActionNode, prefix string) {
	for i := range nodes {
		if r.canceled {
			return
		}
		if err := r.ctx.Err(); err != nil {
			r.canceled = true
			r.logger.Warn("automation cancelled", slog.String("at", prefix+strconv.Itoa(i)))
			return
		}
		r.visit(&nodes[i], prefix+strconv.Itoa(i))
	}
}

func (r *run) visit(n *domain.ActionNode, path string) {
	r.res.ActionsAttempted++

	if n.Type.Branches() {
		r.branch(n, path)
		return
	}

	var (
		msg string
		err error
	)
	switch n.Type {
	case domain.ActionOpenPosition:
		msg, err = r.openPosition(n)
	case domain.ActionClosePosition:
		msg, err = r.closePosition(n)
	case domain.ActionNotification:
		msg, err = r.notify(n)
	case domain.ActionTagBot:
		msg, err = r.tagBot(n)
	case domain.ActionTagPosition:
		msg, err = r.tagPosition(n)
	default:
		err = fmt.Errorf("%w: unknown type %q", domain.ErrInvalidAction, n.Type)
	}
	if err != nil {
		r.logger.Warn("action failed",
			slog.String("path", path),
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
		r.record(path, n.Type, false, "", describeErr(err))
		return
	}
	r.res.ActionsSuccessful++
	r.record(path, n.Type, true, "", msg)
}

// branch evaluates a decision node. YES walks yes_path, NO walks no_path and
// ERROR halts this branch only.
func (r *run) branch(n *domain.ActionNode, path string) {
	if n.Decision == nil {
		r.lastBranch = domain.ResultError
		r.record(path, n.Type, false, domain.ResultError, domain.ErrInvalidAction.Error()+": missing decision")
		return
	}

	dc, err := r.engine.deps.Contexts.Build(r.ctx, r.state, n.Decision.Symbols())
	if err != nil {
		r.lastBranch = domain.ResultError
		r.logger.Warn("decision context unavailable", slog.String("path", path), slog.String("error", err.Error()))
		r.record(path, n.Type, false, domain.ResultError, "build context: "+describeErr(err))
		return
	}

	res := r.engine.deps.Decisions.Evaluate(r.ctx, n.Decision, &dc)
	r.res.DecisionsEvaluated++
	r.lastBranch = res.Result
	if res.Result == domain.ResultError {
		r.record(path, n.Type, false, res.Result, res.Reasoning)
		return
	}
	r.res.ActionsSuccessful++
	r.record(path, n.Type, true, res.Result, res.Reasoning)

	if res.Result == domain.ResultYes {
		r.walk(n.YesPath, path+".yes.")
	} else {
		r.walk(n.NoPath, path+".no.")
	}
}

func (r *run) record(path string, t domain.ActionType, ok bool, decision domain.DecisionResult, msg string) {
	r.res.Actions = append(r.res.Actions, domain.ActionRecord{
		Path:     path,
		Type:     t,
		Success:  ok,
		Decision: decision,
		Message:  msg,
	})
}

func (r *run) openPosition(n *domain.ActionNode) (string, error) {
	if n.Position == nil {
		return "", fmt.Errorf("%w: open_position without position", domain.ErrInvalidAction)
	}
	spec := *n.Position
	if spec.Price <= 0 {
		spec.Price = r.marketPrice(spec.Symbol)
	}
	id, err := r.engine.deps.Positions.OpenPosition(r.ctx, domain.OpenPositionRequest{
		BotName:      r.state.BotName,
		Automation:   r.def.Name,
		PositionSpec: spec,
	})
	if err != nil {
		return "", fmt.Errorf("open position %s: %w", n.Position.Symbol, err)
	}
	r.res.PositionsOpened++
	r.engine.bumpCounter(r.ctx, r.state.BotName, "positions_opened")
	return fmt.Sprintf("opened %s position %s", n.Position.Symbol, id), nil
}

func (r *run) closePosition(n *domain.ActionNode) (string, error) {
	var spec domain.CloseSpec
	if n.CloseConfig != nil {
		spec = *n.CloseConfig
	}
	if spec.PositionID == "" {
		spec.PositionID = n.PositionID
	}
	if spec.Reason == "" {
		spec.Reason = "automation:" + r.def.Name
	}
	symbol := spec.Symbol
	if spec.PositionID == "" {
		pos, err := r.latestOpen(spec.Symbol)
		if err != nil {
			return "", err
		}
		spec.PositionID = pos.ID
		symbol = pos.Symbol
	}
	if spec.Price <= 0 {
		if symbol == "" {
			if pos, err := r.engine.deps.Positions.FindPosition(r.ctx, domain.PositionFilter{ID: spec.PositionID}); err == nil {
				symbol = pos.Symbol
			}
		}
		if symbol != "" {
			spec.Price = r.marketPrice(symbol)
		}
	}
	if err := r.engine.deps.Positions.ClosePosition(r.ctx, spec.PositionID, spec); err != nil {
		return "", fmt.Errorf("close position %s: %w", spec.PositionID, err)
	}
	r.res.PositionsClosed++
	r.engine.bumpCounter(r.ctx, r.state.BotName, "positions_closed")
	return "closed position " + spec.PositionID, nil
}

// marketPrice returns the current mark price of symbol, or 0 when no market
// data collaborator is wired or the symbol has no snapshot. The store then
// keeps its own fallback.
func (r *run) marketPrice(symbol string) float64 {
	if r.engine.deps.Market == nil {
		return 0
	}
	snap, err := r.engine.deps.Market.Snapshot(r.ctx, symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("market price unavailable", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
		return 0
	}
	return snap.MarkPrice()
}

// latestOpen finds the most recently opened position of the bot.
func (r *run) latestOpen(symbol string) (domain.PositionSnapshot, error) {
	pos, err := r.engine.deps.Positions.FindPosition(r.ctx, domain.PositionFilter{
		BotName: r.state.BotName,
		Symbol:  symbol,
		State:   domain.PositionOpen,
	})
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("%w: no open position for bot %s: %w", domain.ErrPositionNotFound, r.state.BotName, err)
	}
	return pos, nil
}

func (r *run) notify(n *domain.ActionNode) (string, error) {
	if n.Notification == nil {
		return "", fmt.Errorf("%w: notification without message", domain.ErrInvalidAction)
	}
	p := domain.NotificationPayload{
		BotName:    r.state.BotName,
		Automation: r.def.Name,
		Event:      n.Notification.Event,
		Title:      n.Notification.Title,
		Message:    n.Notification.Message,
		At:         r.engine.now(),
	}
	if p.Event == "" {
		p.Event = "automation"
	}
	if p.Title == "" {
		p.Title = r.def.Name
	}
	sink := r.engine.deps.Notifications
	if sink == nil {
		r.logger.Info("notification", slog.String("message", p.Message))
		return "notification logged: " + p.Message, nil
	}
	if err := sink.Accept(r.ctx, p); err != nil {
		return "", fmt.Errorf("notify: %w", err)
	}
	return "notification sent: " + p.Message, nil
}

func (r *run) tagBot(n *domain.ActionNode) (string, error) {
	sink := r.engine.deps.Tags
	if sink == nil {
		return "", fmt.Errorf("tag bot: %w", errNoCollaborator)
	}
	err := sink.Accept(r.ctx, domain.TagPayload{
		Target:  domain.TagTargetBot,
		BotName: r.state.BotName,
		Tags:    n.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("tag bot: %w", err)
	}
	return "bot tagged: " + strings.Join(n.Tags, ", "), nil
}

// tagPosition tags the node's position, or the bot's most recent open
// position when none is named.
func (r *run) tagPosition(n *domain.ActionNode) (string, error) {
	id := n.PositionID
	if id == "" {
		pos, err := r.latestOpen("")
		if err != nil {
			return "", err
		}
		id = pos.ID
	}
	if err := r.engine.deps.Positions.AddTags(r.ctx, id, n.Tags); err != nil {
		return "", fmt.Errorf("tag position %s: %w", id, err)
	}
	if sink := r.engine.deps.Tags; sink != nil {
		err := sink.Accept(r.ctx, domain.TagPayload{
			Target:     domain.TagTargetPosition,
			BotName:    r.state.BotName,
			PositionID: id,
			Tags:       n.Tags,
		})
		if err != nil {
			return "", fmt.Errorf("tag position %s: %w", id, err)
		}
	}
	return fmt.Sprintf("position %s tagged: %s", id, strings.Join(n.Tags, ", ")), nil
}

// finish settles the run result. A run completes when at least one action
// was attempted, it was not cancelled and the last branch point evaluated
// did not resolve ERROR.
func (r *run) finish() domain.ExecutionResult {
	res := r.res
	switch {
	case r.canceled:
		res.Result = domain.ExecutionError
		res.Error = domain.ErrExecutionCanceled.Error()
	case res.ActionsAttempted == 0:
		res.Result = domain.ExecutionError
		res.Error = "no actions to execute"
	case r.lastBranch == domain.ResultError:
		res.Result = domain.ExecutionError
		res.Error = "last decision resolved ERROR"
	default:
		res.Result = domain.ExecutionCompleted
	}
	return res
}
