package domain

import (
	"fmt"
	"time"
)

// ActionType tags an ActionNode variant.
type ActionType string

const (
	ActionDecision      ActionType = "decision"
	ActionConditional   ActionType = "conditional"
	ActionOpenPosition  ActionType = "open_position"
	ActionClosePosition ActionType = "close_position"
	ActionNotification  ActionType = "notification"
	ActionTagBot        ActionType = "tag_bot"
	ActionTagPosition   ActionType = "tag_position"
)

// Branches reports whether the action owns yes/no paths.
func (t ActionType) Branches() bool {
	return t == ActionDecision || t == ActionConditional
}

// PositionSpec describes a position to open.
type PositionSpec struct {
	Symbol   string   `json:"symbol"`
	Strategy string   `json:"position_type,omitempty"`
	Quantity float64  `json:"quantity"`
	Price    float64  `json:"price,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// CloseSpec describes a position to close. An empty PositionID selects the
// most recent open position of the bot, optionally filtered by Symbol.
type CloseSpec struct {
	PositionID string  `json:"position_id,omitempty"`
	Symbol     string  `json:"symbol,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// NotificationSpec is the message emitted by a notification action.
type NotificationSpec struct {
	Event   string `json:"event,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// ActionNode is one step of an automation. Decision and conditional nodes
// branch into YesPath or NoPath; the other variants delegate a side effect.
type ActionNode struct {
	Type         ActionType        `json:"type"`
	Name         string            `json:"name,omitempty"`
	Decision     *DecisionConfig   `json:"decision,omitempty"`
	YesPath      []ActionNode      `json:"yes_path,omitempty"`
	NoPath       []ActionNode      `json:"no_path,omitempty"`
	Position     *PositionSpec     `json:"position,omitempty"`
	CloseConfig  *CloseSpec        `json:"close_config,omitempty"`
	Notification *NotificationSpec `json:"notification,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	PositionID   string            `json:"position_id,omitempty"`
}

// Validate checks the node shape recursively.
func (n *ActionNode) Validate() error {
	switch n.Type {
	case ActionDecision, ActionConditional:
		if n.Decision == nil {
			return fmt.Errorf("%w: %s node without decision", ErrInvalidAction, n.Type)
		}
		if err := n.Decision.Validate(); err != nil {
			return fmt.Errorf("%w: %s node: %w", ErrInvalidAction, n.Type, err)
		}
		for i := range n.YesPath {
			if err := n.YesPath[i].Validate(); err != nil {
				return err
			}
		}
		for i := range n.NoPath {
			if err := n.NoPath[i].Validate(); err != nil {
				return err
			}
		}
	case ActionOpenPosition:
		if n.Position == nil || n.Position.Symbol == "" {
			return fmt.Errorf("%w: open_position requires position.symbol", ErrInvalidAction)
		}
		if n.Position.Quantity <= 0 {
			return fmt.Errorf("%w: open_position requires positive quantity", ErrInvalidAction)
		}
	case ActionClosePosition:
	case ActionNotification:
		if n.Notification == nil || n.Notification.Message == "" {
			return fmt.Errorf("%w: notification requires a message", ErrInvalidAction)
		}
	case ActionTagBot, ActionTagPosition:
		if len(n.Tags) == 0 {
			return fmt.Errorf("%w: %s requires tags", ErrInvalidAction, n.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, n.Type)
	}
	return nil
}

// TriggerKind selects when the scheduler runs an automation.
type TriggerKind string

const (
	TriggerContinuous     TriggerKind = "continuous"
	TriggerMarketOpen     TriggerKind = "market_open"
	TriggerMarketClose    TriggerKind = "market_close"
	TriggerDate           TriggerKind = "date"
	TriggerRecurring      TriggerKind = "recurring"
	TriggerPositionOpened TriggerKind = "position_opened"
	TriggerPositionClosed TriggerKind = "position_closed"
	TriggerManual         TriggerKind = "manual"
	TriggerWebhook        TriggerKind = "webhook"
)

// RecurringSpec repeats an automation every RepeatEvery RepeatUnits.
type RecurringSpec struct {
	RepeatUnit  string `json:"repeat_unit"`
	RepeatEvery int    `json:"repeat_every"`
}

// Trigger is the activation rule of an automation.
type Trigger struct {
	Type           TriggerKind    `json:"type"`
	AutomationType string         `json:"automation_type,omitempty"`
	DaysToRun      []string       `json:"days_to_run,omitempty"`
	Date           string         `json:"date,omitempty"`
	Recurring      *RecurringSpec `json:"recurring,omitempty"`
	PositionType   string         `json:"position_type,omitempty"`
	WebhookID      string         `json:"webhook_id,omitempty"`
}

// AutomationDefinition is a named action tree owned by a bot.
type AutomationDefinition struct {
	Name          string       `json:"name"`
	BotName       string       `json:"bot_name"`
	Description   string       `json:"description,omitempty"`
	Disabled      bool         `json:"disabled,omitempty"`
	PositionLimit int          `json:"position_limit,omitempty"`
	Trigger       Trigger      `json:"trigger"`
	Actions       []ActionNode `json:"actions"`
}

// Validate checks the definition and every action node.
func (a *AutomationDefinition) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAutomation)
	}
	if a.BotName == "" {
		return fmt.Errorf("%w: %s: bot_name is required", ErrInvalidAutomation, a.Name)
	}
	for i := range a.Actions {
		if err := a.Actions[i].Validate(); err != nil {
			return fmt.Errorf("%w: %s: action %d: %w", ErrInvalidAutomation, a.Name, i, err)
		}
	}
	return nil
}

// DecisionNodes returns every decision config in the tree, depth-first.
func (a *AutomationDefinition) DecisionNodes() []DecisionConfig {
	var out []DecisionConfig
	var walk func(nodes []ActionNode)
	walk = func(nodes []ActionNode) {
		for _, n := range nodes {
			if n.Type.Branches() && n.Decision != nil {
				out = append(out, *n.Decision)
			}
			walk(n.YesPath)
			walk(n.NoPath)
		}
	}
	walk(a.Actions)
	return out
}

// ExecutionState is the lifecycle state of one automation run.
type ExecutionState string

const (
	ExecutionPending   ExecutionState = "PENDING"
	ExecutionRunning   ExecutionState = "RUNNING"
	ExecutionCompleted ExecutionState = "COMPLETED"
	ExecutionError     ExecutionState = "ERROR"
)

// ExternalState carries caller-supplied inputs for one run.
type ExternalState struct {
	BotName string    `json:"bot_name"`
	Reason  string    `json:"reason,omitempty"`
	Now     time.Time `json:"now"`
}

// ActionRecord is the outcome of one visited node.
type ActionRecord struct {
	Path     string         `json:"path"`
	Type     ActionType     `json:"type"`
	Success  bool           `json:"success"`
	Decision DecisionResult `json:"decision,omitempty"`
	Message  string         `json:"message"`
}

// ExecutionResult is produced once per automation run.
type ExecutionResult struct {
	ID                 string         `json:"id"`
	Automation         string         `json:"automation"`
	BotName            string         `json:"bot_name"`
	Result             ExecutionState `json:"result"`
	Reason             string         `json:"reason,omitempty"`
	ActionsAttempted   int            `json:"actions_attempted"`
	ActionsSuccessful  int            `json:"actions_successful"`
	DecisionsEvaluated int            `json:"decisions_evaluated"`
	PositionsOpened    int            `json:"positions_opened"`
	PositionsClosed    int            `json:"positions_closed"`
	Actions            []ActionRecord `json:"actions,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	Duration           time.Duration  `json:"duration"`
	Error              string         `json:"error,omitempty"`
}

// ActiveExecution describes an in-flight run.
type ActiveExecution struct {
	ID         string         `json:"id"`
	Automation string         `json:"automation"`
	BotName    string         `json:"bot_name"`
	State      ExecutionState `json:"state"`
	StartedAt  time.Time      `json:"started_at"`
}

// ExecutionStatistics aggregates the retained execution history.
type ExecutionStatistics struct {
	TotalExecutions    int           `json:"total_executions"`
	Completed          int           `json:"completed"`
	Failed             int           `json:"failed"`
	SuccessRate        float64       `json:"success_rate"`
	AverageDuration    time.Duration `json:"average_duration"`
	ActionsAttempted   int           `json:"actions_attempted"`
	ActionsSuccessful  int           `json:"actions_successful"`
	ActionSuccessRate  float64       `json:"action_success_rate"`
	DecisionsEvaluated int           `json:"decisions_evaluated"`
	PositionsOpened    int           `json:"positions_opened"`
	PositionsClosed    int           `json:"positions_closed"`
	ActiveExecutions   int           `json:"active_executions"`
}

// NotificationPayload is delivered to a NotificationSink.
type NotificationPayload struct {
	BotName    string    `json:"bot_name"`
	Automation string    `json:"automation"`
	Event      string    `json:"event"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// TagTarget names what a tag applies to.
type TagTarget string

const (
	TagTargetBot      TagTarget = "bot"
	TagTargetPosition TagTarget = "position"
)

// TagPayload is delivered to a TagSink.
type TagPayload struct {
	Target     TagTarget `json:"target"`
	BotName    string    `json:"bot_name"`
	PositionID string    `json:"position_id,omitempty"`
	Tags       []string  `json:"tags"`
}
