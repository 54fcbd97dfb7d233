package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionFilter selects positions. Empty fields match anything.
type PositionFilter struct {
	ID       string
	BotName  string
	Symbol   string
	Strategy string
	State    PositionState
}

// OpenPositionRequest is the input of PositionStore.OpenPosition.
type OpenPositionRequest struct {
	BotName    string
	Automation string
	PositionSpec
}

// PositionStore is the position collaborator of the execution engine.
// FindPosition returns the most recently opened match or ErrNotFound.
// MarkPrice values every open position in symbol at price and returns how
// many were updated.
type PositionStore interface {
	FindPosition(ctx context.Context, filter PositionFilter) (PositionSnapshot, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]PositionSnapshot, error)
	OpenPosition(ctx context.Context, req OpenPositionRequest) (string, error)
	ClosePosition(ctx context.Context, id string, spec CloseSpec) error
	AddTags(ctx context.Context, id string, tags []string) error
	MarkPrice(ctx context.Context, symbol string, price float64) (int, error)
}

// AutomationStore persists automation definitions.
type AutomationStore interface {
	Upsert(ctx context.Context, def AutomationDefinition) error
	Get(ctx context.Context, name string) (AutomationDefinition, error)
	List(ctx context.Context) ([]AutomationDefinition, error)
	Delete(ctx context.Context, name string) error
}

// DecisionRecorder receives every live decision outcome.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
}

// DecisionRecordStore persists and lists decision records.
type DecisionRecordStore interface {
	DecisionRecorder
	ListDecisions(ctx context.Context, opts ListOpts) ([]DecisionRecord, error)
}

// ExecutionRecorder receives every finished automation run.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, res ExecutionResult) error
}

// ExecutionStore persists and lists execution results.
type ExecutionStore interface {
	ExecutionRecorder
	GetExecution(ctx context.Context, id string) (ExecutionResult, error)
	ListExecutions(ctx context.Context, opts ListOpts) ([]ExecutionResult, error)
}
