package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// DecisionStore implements domain.DecisionRecordStore over a bounded log.
type DecisionStore struct {
	mu      sync.RWMutex
	records []domain.DecisionRecord
	max     int
}

// NewDecisionStore keeps at most limit records, dropping the oldest.
func NewDecisionStore(limit int) *DecisionStore {
	if limit <= 0 {
		limit = 10000
	}
	return &DecisionStore{max: limit}
}

// RecordDecision appends rec.
func (s *DecisionStore) RecordDecision(_ context.Context, rec domain.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = appendBounded(s.records, rec, s.max)
	return nil
}

// ListDecisions returns records newest first.
func (s *DecisionStore) ListDecisions(_ context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DecisionRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if inWindow(r.RecordedAt, opts) {
			out = append(out, r)
		}
	}
	return page(out, opts), nil
}

// ExecutionStore implements domain.ExecutionStore over a bounded log.
type ExecutionStore struct {
	mu      sync.RWMutex
	results []domain.ExecutionResult
	max     int
}

// NewExecutionStore keeps at most limit results, dropping the oldest.
func NewExecutionStore(limit int) *ExecutionStore {
	if limit <= 0 {
		limit = 10000
	}
	return &ExecutionStore{max: limit}
}

// RecordExecution appends res. Re-recording an id is a no-op.
func (s *ExecutionStore) RecordExecution(_ context.Context, res domain.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].ID == res.ID {
			return nil
		}
	}
	res.Actions = slices.Clone(res.Actions)
	s.results = appendBounded(s.results, res, s.max)
	return nil
}

// GetExecution returns one run by id.
func (s *ExecutionStore) GetExecution(_ context.Context, id string) (domain.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.results {
		if s.results[i].ID == id {
			return s.results[i], nil
		}
	}
	return domain.ExecutionResult{}, domain.ErrNotFound
}

// ListExecutions returns runs newest first.
func (s *ExecutionStore) ListExecutions(_ context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ExecutionResult
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		if inWindow(r.StartedAt, opts) {
			out = append(out, r)
		}
	}
	return page(out, opts), nil
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = slices.Delete(s, 0, len(s)-limit)
	}
	return s
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	return opts.Until == nil || !t.After(*opts.Until)
}

func page[T any](s []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(s) {
			return nil
		}
		s = s[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(s) {
		s = s[:opts.Limit]
	}
	return s
}

var (
	_ domain.DecisionRecordStore = (*DecisionStore)(nil)
	_ domain.ExecutionStore      = (*ExecutionStore)(nil)
)
