package opsboard

import (
	"sync"
	"time"
)

// PollStats holds polling statistics.
type PollStats struct {
	TotalPolls      int64         `json:"total_polls"`
	SuccessfulPolls int64         `json:"successful_polls"`
	FailedPolls     int64         `json:"failed_polls"`
	SkippedTicks    int64         `json:"skipped_ticks"`
	Discarded       int64         `json:"discarded"`
	TotalEndpoints  int64         `json:"total_endpoints"`
	LastDuration    time.Duration `json:"last_duration"`
	LastSuccess     time.Time     `json:"last_success"`
	LastFailure     time.Time     `json:"last_failure"`
}

// Stale reports whether the most recent poll failed.
func (s PollStats) Stale() bool {
	return s.LastFailure.After(s.LastSuccess)
}

// Add returns the sum of s and o. Timestamps take the latest value and
// LastDuration the larger one.
func (s PollStats) Add(o PollStats) PollStats {
	s.TotalPolls += o.TotalPolls
	s.SuccessfulPolls += o.SuccessfulPolls
	s.FailedPolls += o.FailedPolls
	s.SkippedTicks += o.SkippedTicks
	s.Discarded += o.Discarded
	s.TotalEndpoints += o.TotalEndpoints
	if o.LastDuration > s.LastDuration {
		s.LastDuration = o.LastDuration
	}
	if o.LastSuccess.After(s.LastSuccess) {
		s.LastSuccess = o.LastSuccess
	}
	if o.LastFailure.After(s.LastFailure) {
		s.LastFailure = o.LastFailure
	}
	return s
}

// statsTracker provides thread-safe poll statistics tracking.
type statsTracker struct {
	mu    sync.RWMutex
	stats PollStats
	now   func() time.Time
}

func (s *statsTracker) recordPoll(success bool, endpoints int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	s.stats.TotalPolls++
	if success {
		s.stats.SuccessfulPolls++
		s.stats.TotalEndpoints += int64(endpoints)
		s.stats.LastSuccess = now
	} else {
		s.stats.FailedPolls++
		s.stats.LastFailure = now
	}
	s.stats.LastDuration = duration
}

func (s *statsTracker) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SkippedTicks++
}

func (s *statsTracker) recordDiscard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Discarded++
}

func (s *statsTracker) snapshot() PollStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
