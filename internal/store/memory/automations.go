package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// AutomationStore implements domain.AutomationStore in memory.
type AutomationStore struct {
	mu   sync.RWMutex
	defs map[string]domain.AutomationDefinition
}

// NewAutomationStore creates an empty AutomationStore.
func NewAutomationStore() *AutomationStore {
	return &AutomationStore{defs: make(map[string]domain.AutomationDefinition)}
}

// Upsert stores def by name.
func (s *AutomationStore) Upsert(_ context.Context, def domain.AutomationDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
	return nil
}

// Get returns a definition by name.
func (s *AutomationStore) Get(_ context.Context, name string) (domain.AutomationDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return domain.AutomationDefinition{}, domain.ErrNotFound
	}
	return def, nil
}

// List returns every definition ordered by name.
func (s *AutomationStore) List(context.Context) ([]domain.AutomationDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AutomationDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a definition.
func (s *AutomationStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return domain.ErrNotFound
	}
	delete(s.defs, name)
	return nil
}

var _ domain.AutomationStore = (*AutomationStore)(nil)
