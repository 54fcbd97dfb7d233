package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 14, hour, minute, 0, 0, time.UTC)
}

func TestShouldTrigger(t *testing.T) {
	opened := &domain.PositionSnapshot{ID: "p1", Symbol: "SPY", Strategy: "put_spread"}

	tests := []struct {
		name    string
		trigger domain.Trigger
		in      TriggerInput
		want    bool
	}{
		{"scanner under limit", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "scanner"}, TriggerInput{OpenPositions: 2, PositionLimit: 3}, true},
		{"scanner at limit", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "scanner"}, TriggerInput{OpenPositions: 3, PositionLimit: 3}, false},
		{"scanner default limit", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "scanner"}, TriggerInput{OpenPositions: 99}, true},
		{"monitor with positions", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "monitor"}, TriggerInput{OpenPositions: 1}, true},
		{"monitor without positions", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "monitor"}, TriggerInput{}, false},
		{"unknown continuous", domain.Trigger{Type: domain.TriggerContinuous, AutomationType: "sweeper"}, TriggerInput{}, false},

		{"market open inside window", domain.Trigger{Type: domain.TriggerMarketOpen}, TriggerInput{Now: at(9, 34)}, true},
		{"market open outside window", domain.Trigger{Type: domain.TriggerMarketOpen}, TriggerInput{Now: at(9, 40)}, false},
		{"market open on listed day", domain.Trigger{Type: domain.TriggerMarketOpen, DaysToRun: []string{"wednesday"}}, TriggerInput{Now: at(9, 30)}, true},
		{"market open on other day", domain.Trigger{Type: domain.TriggerMarketOpen, DaysToRun: []string{"Monday"}}, TriggerInput{Now: at(9, 30)}, false},
		{"market close", domain.Trigger{Type: domain.TriggerMarketClose}, TriggerInput{Now: at(15, 56)}, true},

		{"date today", domain.Trigger{Type: domain.TriggerDate, Date: "10/14/2026"}, TriggerInput{Now: at(12, 0)}, true},
		{"date other day", domain.Trigger{Type: domain.TriggerDate, Date: "10/15/2026"}, TriggerInput{Now: at(12, 0)}, false},
		{"date malformed", domain.Trigger{Type: domain.TriggerDate, Date: "2026-10-14"}, TriggerInput{Now: at(12, 0)}, false},

		{"recurring first run", domain.Trigger{Type: domain.TriggerRecurring}, TriggerInput{Now: at(12, 0)}, true},
		{"recurring daily too soon", domain.Trigger{Type: domain.TriggerRecurring}, TriggerInput{Now: at(12, 0), LastRun: at(1, 0)}, false},
		{"recurring hours elapsed", domain.Trigger{Type: domain.TriggerRecurring, Recurring: &domain.RecurringSpec{RepeatUnit: "hours", RepeatEvery: 2}}, TriggerInput{Now: at(12, 0), LastRun: at(10, 0)}, true},
		{"recurring minutes pending", domain.Trigger{Type: domain.TriggerRecurring, Recurring: &domain.RecurringSpec{RepeatUnit: "minute", RepeatEvery: 15}}, TriggerInput{Now: at(12, 0), LastRun: at(11, 50)}, false},
		{"recurring unknown unit", domain.Trigger{Type: domain.TriggerRecurring, Recurring: &domain.RecurringSpec{RepeatUnit: "fortnight"}}, TriggerInput{Now: at(12, 0)}, false},

		{"position opened any", domain.Trigger{Type: domain.TriggerPositionOpened, PositionType: "any"}, TriggerInput{RecentlyOpened: opened}, true},
		{"position opened matching", domain.Trigger{Type: domain.TriggerPositionOpened, PositionType: "put_spread"}, TriggerInput{RecentlyOpened: opened}, true},
		{"position opened other type", domain.Trigger{Type: domain.TriggerPositionOpened, PositionType: "iron_condor"}, TriggerInput{RecentlyOpened: opened}, false},
		{"position closed none", domain.Trigger{Type: domain.TriggerPositionClosed}, TriggerInput{RecentlyOpened: opened}, false},

		{"manual active", domain.Trigger{Type: domain.TriggerManual}, TriggerInput{Manual: true}, true},
		{"manual idle", domain.Trigger{Type: domain.TriggerManual}, TriggerInput{}, false},
		{"webhook match", domain.Trigger{Type: domain.TriggerWebhook, WebhookID: "hook-1"}, TriggerInput{WebhookID: "hook-1"}, true},
		{"webhook mismatch", domain.Trigger{Type: domain.TriggerWebhook, WebhookID: "hook-1"}, TriggerInput{WebhookID: "hook-2"}, false},
		{"unknown trigger", domain.Trigger{Type: "lunar"}, TriggerInput{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.in.Now.IsZero() {
				tt.in.Now = at(12, 0)
			}
			got, reason := ShouldTrigger(tt.trigger, tt.in)
			assert.Equal(t, tt.want, got, reason)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCooldown(t *testing.T) {
	now := testNow
	c := newCooldown(30*time.Second, func() time.Time { return now })

	assert.True(t, c.claim("bot/a"))
	assert.False(t, c.claim("bot/a"))
	assert.True(t, c.claim("bot/b"))

	now = now.Add(30 * time.Second)
	c.cleanup()
	assert.Empty(t, c.seen)
	assert.True(t, c.claim("bot/a"))
}
