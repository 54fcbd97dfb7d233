package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Action
// records are stored as JSONB.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, automation, bot_name, result, reason,
	actions_attempted, actions_successful, decisions_evaluated,
	positions_opened, positions_closed, actions, error_message,
	started_at, duration_ms`

// RecordExecution inserts a finished run. Re-recording an id is a no-op.
func (s *ExecutionStore) RecordExecution(ctx context.Context, res domain.ExecutionResult) error {
	actions, err := json.Marshal(res.Actions)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution actions %s: %w", res.ID, err)
	}

	const query = `
		INSERT INTO execution_records (` + executionSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		res.ID, res.Automation, res.BotName, string(res.Result), res.Reason,
		res.ActionsAttempted, res.ActionsSuccessful, res.DecisionsEvaluated,
		res.PositionsOpened, res.PositionsClosed, actions, res.Error,
		res.StartedAt, res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: record execution %s: %w", res.ID, err)
	}
	return nil
}

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		r       domain.ExecutionResult
		result  string
		actions []byte
		ms      int64
	)
	err := row.Scan(
		&r.ID, &r.Automation, &r.BotName, &result, &r.Reason,
		&r.ActionsAttempted, &r.ActionsSuccessful, &r.DecisionsEvaluated,
		&r.PositionsOpened, &r.PositionsClosed, &actions, &r.Error,
		&r.StartedAt, &ms,
	)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	r.Result = domain.ExecutionState(result)
	r.Duration = time.Duration(ms) * time.Millisecond
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return domain.ExecutionResult{}, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	return r, nil
}

// GetExecution retrieves one run by id.
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (domain.ExecutionResult, error) {
	r, err := scanExecution(s.pool.QueryRow(ctx,
		`SELECT `+executionSelectCols+` FROM execution_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return r, nil
}

// ListExecutions returns runs newest first.
func (s *ExecutionStore) ListExecutions(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	var w where
	w.window("started_at", opts)
	query := `SELECT ` + executionSelectCols + ` FROM execution_records` +
		w.String() + ` ORDER BY started_at DESC` + w.page(opts)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionResult
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	return out, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
