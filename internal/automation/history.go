package automation

import (
	"sync"
	"time"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// history is a bounded, oldest-first log of execution results.
type history struct {
	mu      sync.Mutex
	limit   int
	results []domain.ExecutionResult
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

func (h *history) add(res domain.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, res)
	if over := len(h.results) - h.limit; over > 0 {
		h.results = append(h.results[:0:0], h.results[over:]...)
	}
}

func (h *history) list(limit int, bot, automation string) []domain.ExecutionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ExecutionResult, 0)
	for i := len(h.results) - 1; i >= 0; i-- {
		r := h.results[i]
		if bot != "" && r.BotName != bot {
			continue
		}
		if automation != "" && r.Automation != automation {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// snapshot returns a copy of the retained results, oldest first.
func (h *history) snapshot() []domain.ExecutionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ExecutionResult(nil), h.results...)
}

func (h *history) stats() domain.ExecutionStatistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	var st domain.ExecutionStatistics
	var total time.Duration
	for _, r := range h.results {
		st.TotalExecutions++
		if r.Result == domain.ExecutionCompleted {
			st.Completed++
		} else {
			st.Failed++
		}
		total += r.Duration
		st.ActionsAttempted += r.ActionsAttempted
		st.ActionsSuccessful += r.ActionsSuccessful
		st.DecisionsEvaluated += r.DecisionsEvaluated
		st.PositionsOpened += r.PositionsOpened
		st.PositionsClosed += r.PositionsClosed
	}
	if st.TotalExecutions > 0 {
		st.SuccessRate = float64(st.Completed) / float64(st.TotalExecutions)
		st.AverageDuration = total / time.Duration(st.TotalExecutions)
	}
	if st.ActionsAttempted > 0 {
		st.ActionSuccessRate = float64(st.ActionsSuccessful) / float64(st.ActionsAttempted)
	}
	return st
}
