package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)

// Configuration errors. Evaluating a config that fails with one of these
// yields an ERROR result classified as FailureConfig.
var (
	ErrInvalidConfig          = errors.New("invalid decision config")
	ErrUnsupportedRecipeKind  = errors.New("unsupported recipe kind")
	ErrUnsupportedIndicator   = errors.New("unsupported indicator")
	ErrUnsupportedCondition   = errors.New("unsupported condition type")
	ErrUnsupportedOperator    = errors.New("unsupported comparison operator")
	ErrTypeMismatch           = errors.New("operand type mismatch")
	ErrMissingOperand         = errors.New("missing operand")
	ErrInvalidPeriod          = errors.New("indicator period must be positive")
	ErrInvalidAction          = errors.New("invalid action node")
	ErrInvalidAutomation      = errors.New("invalid automation definition")
	ErrUnsupportedTriggerKind = errors.New("unsupported trigger kind")
)

// Data availability errors. Classified as FailureDataUnavailable.
var (
	ErrSymbolNotFound   = errors.New("symbol not found in market data")
	ErrPositionNotFound = errors.New("no matching position")
	ErrInsufficientData = errors.New("insufficient data")
)

// ErrMaxDepthExceeded is classified as FailureDepthExceeded.
var ErrMaxDepthExceeded = errors.New("grouped decision nesting exceeds maximum depth")

// ErrExecutionCanceled is reported on runs stopped by Cancel or by their
// context.
var ErrExecutionCanceled = errors.New("execution cancelled")
