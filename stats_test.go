package opsboard

import (
	"testing"
	"time"
)

func TestStatsTracker(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := statsTracker{now: func() time.Time { return clock }}

	stats := s.snapshot()
	if stats.TotalPolls != 0 {
		t.Errorf("TotalPolls = %d, want 0", stats.TotalPolls)
	}

	s.recordPoll(true, 2, 100*time.Millisecond)

	stats = s.snapshot()
	if stats.TotalPolls != 1 {
		t.Errorf("TotalPolls = %d, want 1", stats.TotalPolls)
	}
	if stats.SuccessfulPolls != 1 {
		t.Errorf("SuccessfulPolls = %d, want 1", stats.SuccessfulPolls)
	}
	if stats.TotalEndpoints != 2 {
		t.Errorf("TotalEndpoints = %d, want 2", stats.TotalEndpoints)
	}
	if stats.LastDuration != 100*time.Millisecond {
		t.Errorf("LastDuration = %v, want 100ms", stats.LastDuration)
	}
	if stats.Stale() {
		t.Error("Stale() should be false after a successful poll")
	}

	clock = clock.Add(5 * time.Second)
	s.recordPoll(false, 0, 50*time.Millisecond)

	stats = s.snapshot()
	if stats.TotalPolls != 2 {
		t.Errorf("TotalPolls = %d, want 2", stats.TotalPolls)
	}
	if stats.FailedPolls != 1 {
		t.Errorf("FailedPolls = %d, want 1", stats.FailedPolls)
	}
	if stats.TotalEndpoints != 2 {
		t.Errorf("TotalEndpoints = %d, want 2 (unchanged after failure)", stats.TotalEndpoints)
	}
	if !stats.Stale() {
		t.Error("Stale() should be true after a failed poll")
	}

	s.recordSkip()
	s.recordDiscard()
	s.recordDiscard()
	stats = s.snapshot()
	if stats.SkippedTicks != 1 {
		t.Errorf("SkippedTicks = %d, want 1", stats.SkippedTicks)
	}
	if stats.Discarded != 2 {
		t.Errorf("Discarded = %d, want 2", stats.Discarded)
	}
}

func TestPollStatsAdd(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	a := PollStats{TotalPolls: 3, SuccessfulPolls: 2, FailedPolls: 1, LastDuration: time.Second, LastSuccess: t1}
	b := PollStats{TotalPolls: 1, SuccessfulPolls: 1, SkippedTicks: 4, LastDuration: 2 * time.Second, LastSuccess: t2}

	sum := a.Add(b)
	if sum.TotalPolls != 4 {
		t.Errorf("TotalPolls = %d, want 4", sum.TotalPolls)
	}
	if sum.SkippedTicks != 4 {
		t.Errorf("SkippedTicks = %d, want 4", sum.SkippedTicks)
	}
	if sum.LastDuration != 2*time.Second {
		t.Errorf("LastDuration = %v, want 2s", sum.LastDuration)
	}
	if !sum.LastSuccess.Equal(t2) {
		t.Errorf("LastSuccess = %v, want %v", sum.LastSuccess, t2)
	}
}
