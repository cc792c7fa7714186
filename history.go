package opsboard

import "time"

// Display capacities used by the default views.
const (
	MetricsHistorySize  = 10
	OverviewHistorySize = 24
	KafkaHistorySize    = 30
)

// TimeLabelLayout is the display format for point timestamps.
const TimeLabelLayout = "15:04:05"

// HistoryPoint is one derived throughput sample.
type HistoryPoint struct {
	Timestamp time.Time `json:"-"`
	Label     string    `json:"timestamp"`
	Delta     int64     `json:"delta"`
	Rate      float64   `json:"rate"`
	ErrorRate float64   `json:"error_rate"`
}

// LatencyPoint is one latency sample for trend charts.
type LatencyPoint struct {
	Timestamp time.Time `json:"-"`
	Label     string    `json:"timestamp"`
	AvgMs     float64   `json:"avg"`
	P95Ms     float64   `json:"p95"`
}

// History is a bounded, append-only sequence in chronological order. Once
// full, appending evicts the oldest entries.
type History[T any] struct {
	capacity int
	items    []T
}

// NewHistory creates an empty history holding at most capacity entries.
// A non-positive capacity is treated as one.
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &History[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Append adds v at the end, dropping from the front until len <= capacity.
func (h *History[T]) Append(v T) {
	h.items = append(h.items, v)
	if over := len(h.items) - h.capacity; over > 0 {
		kept := make([]T, h.capacity, h.capacity+1)
		copy(kept, h.items[over:])
		h.items = kept
	}
}

// Clear empties the history.
func (h *History[T]) Clear() {
	h.items = make([]T, 0, h.capacity)
}

// Len returns the number of stored entries.
func (h *History[T]) Len() int {
	return len(h.items)
}

// Cap returns the configured capacity.
func (h *History[T]) Cap() int {
	return h.capacity
}

// Points returns a copy of the entries, oldest first.
func (h *History[T]) Points() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// Newest returns a copy of the entries, newest first.
func (h *History[T]) Newest() []T {
	out := make([]T, len(h.items))
	for i, v := range h.items {
		out[len(h.items)-1-i] = v
	}
	return out
}

// Last returns the most recent entry.
func (h *History[T]) Last() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return h.items[len(h.items)-1], true
}
