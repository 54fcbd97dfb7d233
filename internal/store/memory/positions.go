// Package memory provides process-local implementations of the domain
// stores. The app falls back to them when Postgres or Redis is not
// configured, so a single binary can run without infrastructure.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions []domain.PositionSnapshot
	now       func() time.Time
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{now: time.Now}
}

func matches(p *domain.PositionSnapshot, f domain.PositionFilter) bool {
	return (f.ID == "" || p.ID == f.ID) &&
		(f.BotName == "" || p.BotName == f.BotName) &&
		(f.Symbol == "" || p.Symbol == f.Symbol) &&
		(f.Strategy == "" || p.Strategy == f.Strategy) &&
		(f.State == "" || p.State == f.State)
}

// FindPosition returns the most recently opened match.
func (s *PositionStore) FindPosition(_ context.Context, f domain.PositionFilter) (domain.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.positions) - 1; i >= 0; i-- {
		if matches(&s.positions[i], f) {
			return clonePosition(s.positions[i]), nil
		}
	}
	return domain.PositionSnapshot{}, domain.ErrNotFound
}

// ListPositions returns matches oldest first.
func (s *PositionStore) ListPositions(_ context.Context, f domain.PositionFilter) ([]domain.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PositionSnapshot
	for i := range s.positions {
		if matches(&s.positions[i], f) {
			out = append(out, clonePosition(s.positions[i]))
		}
	}
	return out, nil
}

// OpenPosition records an open position and returns its id.
func (s *PositionStore) OpenPosition(_ context.Context, req domain.OpenPositionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.positions = append(s.positions, domain.PositionSnapshot{
		ID:           id,
		BotName:      req.BotName,
		Symbol:       req.Symbol,
		Strategy:     req.Strategy,
		State:        domain.PositionOpen,
		Quantity:     req.Quantity,
		EntryPrice:   req.Price,
		CurrentPrice: req.Price,
		OpenedAt:     s.now(),
		Tags:         slices.Clone(req.Tags),
	})
	return id, nil
}

// ClosePosition closes an open position, realising PnL at spec.Price when
// it is positive.
func (s *PositionStore) ClosePosition(_ context.Context, id string, spec domain.CloseSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		p := &s.positions[i]
		if p.ID != id || p.State != domain.PositionOpen {
			continue
		}
		if spec.Price > 0 {
			p.CurrentPrice = spec.Price
			p.RealizedPnL = (spec.Price - p.EntryPrice) * p.Quantity
		} else {
			p.RealizedPnL = p.UnrealizedPnL
		}
		p.UnrealizedPnL = 0
		p.State = domain.PositionClosed
		closed := s.now()
		p.ClosedAt = &closed
		return nil
	}
	return domain.ErrNotFound
}

// AddTags merges tags into the position's sorted tag set.
func (s *PositionStore) AddTags(_ context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.positions {
		if s.positions[i].ID == id {
			merged := append(slices.Clone(s.positions[i].Tags), tags...)
			slices.Sort(merged)
			s.positions[i].Tags = slices.Compact(merged)
			return nil
		}
	}
	return domain.ErrNotFound
}

// MarkPrice values the open positions in symbol at price.
func (s *PositionStore) MarkPrice(_ context.Context, symbol string, price float64) (int, error) {
	if price <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.positions {
		p := &s.positions[i]
		if p.Symbol == symbol && p.State == domain.PositionOpen {
			p.Mark(price)
			n++
		}
	}
	return n, nil
}

func clonePosition(p domain.PositionSnapshot) domain.PositionSnapshot {
	p.Tags = slices.Clone(p.Tags)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}

var _ domain.PositionStore = (*PositionStore)(nil)
