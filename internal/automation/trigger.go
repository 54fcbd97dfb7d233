package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Trigger timing constants. Times are wall-clock in the scheduler location.
const (
	marketOpenMinute     = 9*60 + 30
	marketCloseMinute    = 16 * 60
	triggerWindow        = 5 * time.Minute
	defaultPositionLimit = 100
	dateLayout           = "01/02/2006"
)

// TriggerInput is the observed state a trigger is evaluated against.
type TriggerInput struct {
	Now            time.Time
	OpenPositions  int
	PositionLimit  int
	LastRun        time.Time
	Manual         bool
	WebhookID      string
	RecentlyOpened *domain.PositionSnapshot
	RecentlyClosed *domain.PositionSnapshot
}

// ShouldTrigger reports whether t fires for in, with a reason.
func ShouldTrigger(t domain.Trigger, in TriggerInput) (bool, string) {
	switch t.Type {
	case domain.TriggerContinuous:
		return continuous(t, in)
	case domain.TriggerMarketOpen:
		return nearClock(t, in.Now, marketOpenMinute, "market open")
	case domain.TriggerMarketClose:
		return nearClock(t, in.Now, marketCloseMinute, "market close")
	case domain.TriggerDate:
		target, err := time.ParseInLocation(dateLayout, t.Date, in.Now.Location())
		if err != nil {
			return false, fmt.Sprintf("invalid date %q", t.Date)
		}
		y, m, d := in.Now.Date()
		ty, tm, td := target.Date()
		if y == ty && m == tm && d == td {
			return true, "date " + t.Date
		}
		return false, "not " + t.Date
	case domain.TriggerRecurring:
		return recurring(t, in)
	case domain.TriggerPositionOpened:
		return positionEvent(t, in.RecentlyOpened, "opened")
	case domain.TriggerPositionClosed:
		return positionEvent(t, in.RecentlyClosed, "closed")
	case domain.TriggerManual:
		if in.Manual {
			return true, "manual trigger"
		}
		return false, "manual trigger not activated"
	case domain.TriggerWebhook:
		if t.WebhookID != "" && in.WebhookID == t.WebhookID {
			return true, "webhook " + t.WebhookID
		}
		return false, "webhook not received"
	default:
		return false, fmt.Sprintf("unknown trigger type %q", t.Type)
	}
}

// continuous scanners run while under the position limit; monitors run
// while any position is open.
func continuous(t domain.Trigger, in TriggerInput) (bool, string) {
	switch t.AutomationType {
	case "scanner":
		limit := in.PositionLimit
		if limit <= 0 {
			limit = defaultPositionLimit
		}
		if in.OpenPositions < limit {
			return true, fmt.Sprintf("scanner: %d/%d positions", in.OpenPositions, limit)
		}
		return false, fmt.Sprintf("position limit reached: %d/%d", in.OpenPositions, limit)
	case "monitor":
		if in.OpenPositions > 0 {
			return true, fmt.Sprintf("monitor: %d open positions", in.OpenPositions)
		}
		return false, "no open positions to monitor"
	default:
		return false, fmt.Sprintf("unknown automation type %q", t.AutomationType)
	}
}

func nearClock(t domain.Trigger, now time.Time, minuteOfDay int, label string) (bool, string) {
	y, m, d := now.Date()
	target := time.Date(y, m, d, minuteOfDay/60, minuteOfDay%60, 0, 0, now.Location())
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	if diff > triggerWindow {
		return false, "not " + label + " time"
	}
	if !runsOn(t.DaysToRun, now.Weekday()) {
		return false, fmt.Sprintf("not scheduled on %s", now.Weekday())
	}
	return true, label
}

func runsOn(days []string, wd time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if strings.EqualFold(d, wd.String()) {
			return true
		}
	}
	return false
}

func recurring(t domain.Trigger, in TriggerInput) (bool, string) {
	unit, every := "day", 1
	if t.Recurring != nil {
		if t.Recurring.RepeatUnit != "" {
			unit = t.Recurring.RepeatUnit
		}
		if t.Recurring.RepeatEvery > 0 {
			every = t.Recurring.RepeatEvery
		}
	}
	var period time.Duration
	switch strings.TrimSuffix(unit, "s") {
	case "minute":
		period = time.Minute
	case "hour":
		period = time.Hour
	case "day":
		period = 24 * time.Hour
	case "week":
		period = 7 * 24 * time.Hour
	default:
		return false, fmt.Sprintf("unknown repeat unit %q", unit)
	}
	period *= time.Duration(every)
	if in.LastRun.IsZero() || in.Now.Sub(in.LastRun) >= period {
		return true, fmt.Sprintf("every %d %s", every, unit)
	}
	return false, "recurring period not elapsed"
}

func positionEvent(t domain.Trigger, pos *domain.PositionSnapshot, verb string) (bool, string) {
	if pos == nil {
		return false, "no recently " + verb + " position"
	}
	if t.PositionType != "" && t.PositionType != "any" && t.PositionType != pos.Strategy {
		return false, fmt.Sprintf("position %s is %s, want %s", pos.ID, pos.Strategy, t.PositionType)
	}
	return true, fmt.Sprintf("position %s %s: %s", pos.ID, verb, pos.Symbol)
}
