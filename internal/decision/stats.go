package decision

import (
	"sync"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// statsRecorder keeps lifetime counters and a bounded log of recent records
// for windowed aggregation.
type statsRecorder struct {
	mu         sync.Mutex
	maxRecords int
	records    []domain.DecisionRecord

	total     int
	byKind    map[domain.RecipeKind]int
	errors    int
	cacheHits int
}

func newStatsRecorder(maxRecords int) *statsRecorder {
	return &statsRecorder{
		maxRecords: maxRecords,
		byKind:     make(map[domain.RecipeKind]int),
	}
}

func (s *statsRecorder) record(rec domain.DecisionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byKind[rec.RecipeKind]++
	if rec.Result == domain.ResultError {
		s.errors++
	}
	if rec.CacheHit {
		s.cacheHits++
	}

	// Trimmed in batches; the log may exceed maxRecords by a quarter.
	s.records = append(s.records, rec)
	if len(s.records) > s.maxRecords+s.maxRecords/4 {
		s.records = append(s.records[:0:0], s.records[len(s.records)-s.maxRecords:]...)
	}
}

// snapshot aggregates records newer than now-window. A non-positive window
// covers every retained record.
func (s *statsRecorder) snapshot(window time.Duration, now time.Time) domain.DecisionStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.DecisionStatistics{
		Window:       window,
		ByResult:     make(map[domain.DecisionResult]int),
		ByRecipeKind: make(map[domain.RecipeKind]int),
		Lifetime: domain.LifetimeDecisionCounters{
			TotalEvaluations: s.total,
			ByRecipeKind:     make(map[domain.RecipeKind]int, len(s.byKind)),
			Errors:           s.errors,
			CacheHits:        s.cacheHits,
		},
	}
	for k, v := range s.byKind {
		st.Lifetime.ByRecipeKind[k] = v
	}

	cutoff := now.Add(-window)
	var confSum float64
	for _, r := range s.records {
		if window > 0 && r.RecordedAt.Before(cutoff) {
			continue
		}
		st.TotalDecisions++
		st.ByResult[r.Result]++
		st.ByRecipeKind[r.RecipeKind]++
		confSum += r.Confidence
		if r.CacheHit {
			st.CacheHits++
		}
	}
	if st.TotalDecisions > 0 {
		n := float64(st.TotalDecisions)
		st.AverageConfidence = confSum / n
		st.ErrorRate = float64(st.ByResult[domain.ResultError]) / n
		st.CacheHitRate = float64(st.CacheHits) / n
	}
	return st
}

func (s *statsRecorder) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.total, s.errors, s.cacheHits = 0, 0, 0
	s.byKind = make(map[domain.RecipeKind]int)
}
