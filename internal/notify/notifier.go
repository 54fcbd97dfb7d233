// Package notify delivers automation notifications to chat channels
// (Telegram, Discord). Delivery is filtered by event type and throttled.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to every Sender. It implements
// domain.NotificationSink so notification actions reach the channels.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are
// forwarded; an empty list allows all. perSecond <= 0 disables throttling.
func NewNotifier(senders []Sender, events []string, perSecond float64, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		limiter: rate.NewLimiter(limit, max(1, int(perSecond))),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Accept implements domain.NotificationSink.
func (n *Notifier) Accept(ctx context.Context, p domain.NotificationPayload) error {
	title := p.Title
	if p.BotName != "" {
		title = fmt.Sprintf("[%s] %s", p.BotName, title)
	}
	return n.Notify(ctx, p.Event, title, p.Message)
}

// Notify sends to all senders when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: throttle: %w", err)
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

var _ domain.NotificationSink = (*Notifier)(nil)
