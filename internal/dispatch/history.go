package dispatch

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the in-memory execution history.
const DefaultHistorySize = 1000

// Stats are rollup statistics over the retained history.
type Stats struct {
	TotalExecutions       int
	SuccessRate           float64
	AverageExecutionTime  time.Duration
	AverageItemsProcessed float64
	ErrorRate             float64
}

// History is a bounded buffer of past executions. Appends evict the oldest
// entry once full. Statistics are recomputed on demand by a linear pass,
// which is fine at the bounded size.
//
// Appends are serialized by the mutex; under the single-dispatch assumption
// there is at most one writer, but concurrent triggers stay safe.
type History struct {
	mu  sync.Mutex
	buf []Result
	cap int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{cap: capacity}
}

func (h *History) Append(r Result) {
	h.mu.Lock()
	h.buf = append(h.buf, r)
	if len(h.buf) > h.cap {
		h.buf = h.buf[len(h.buf)-h.cap:]
	}
	h.mu.Unlock()
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.buf)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Result, 0, n)
	for i := len(h.buf) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.buf[i])
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf)
}

func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{TotalExecutions: len(h.buf)}
	if st.TotalExecutions == 0 {
		return st
	}

	var (
		successes     int
		totalDur      time.Duration
		totalItems    int
		totalAttempts int
		totalFailed   int
	)
	for _, r := range h.buf {
		if r.Success {
			successes++
		}
		totalDur += r.Duration
		totalItems += r.Processed
		totalAttempts += r.Metrics.TotalAttempts
		totalFailed += r.Metrics.FailedAttempts
	}

	n := float64(st.TotalExecutions)
	st.SuccessRate = float64(successes) / n
	st.AverageExecutionTime = totalDur / time.Duration(st.TotalExecutions)
	st.AverageItemsProcessed = float64(totalItems) / n
	if totalAttempts > 0 {
		st.ErrorRate = float64(totalFailed) / float64(totalAttempts)
	}
	return st
}
