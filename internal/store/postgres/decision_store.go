package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// DecisionStore implements domain.DecisionRecordStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given connection pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// RecordDecision appends one decision outcome.
func (s *DecisionStore) RecordDecision(ctx context.Context, rec domain.DecisionRecord) error {
	const query = `
		INSERT INTO decision_records (
			recipe_kind, result, confidence, cache_hit, failure, reasoning, config_hash, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		string(rec.RecipeKind), string(rec.Result), rec.Confidence, rec.CacheHit,
		string(rec.Failure), rec.Reasoning, rec.ConfigHash, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record decision: %w", err)
	}
	return nil
}

// ListDecisions returns records newest first.
func (s *DecisionStore) ListDecisions(ctx context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	var w where
	w.window("recorded_at", opts)
	query := `SELECT recipe_kind, result, confidence, cache_hit, failure, reasoning, config_hash, recorded_at
		FROM decision_records` + w.String() + ` ORDER BY recorded_at DESC` + w.page(opts)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.DecisionRecord
	for rows.Next() {
		var (
			r                     domain.DecisionRecord
			kind, result, failure string
		)
		if err := rows.Scan(&kind, &result, &r.Confidence, &r.CacheHit, &failure, &r.Reasoning, &r.ConfigHash, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		r.RecipeKind = domain.RecipeKind(kind)
		r.Result = domain.DecisionResult(result)
		r.Failure = domain.FailureKind(failure)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return out, nil
}

var _ domain.DecisionRecordStore = (*DecisionStore)(nil)
