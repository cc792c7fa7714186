package opsboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Submission kinds.
const (
	KindClassifier = "classifier"
	KindLLM        = "llm"
)

// Submission is one inference request sent through the board and its outcome.
type Submission struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Request   any       `json:"request"`
	Response  any       `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMs float64   `json:"latency_ms"`
	Tier      Tier      `json:"tier"`
}

// SubmissionLog keeps the most recent submissions of one kind.
type SubmissionLog struct {
	kind string

	mu      sync.Mutex
	history *History[Submission]
}

// NewSubmissionLog creates a log holding at most capacity submissions.
func NewSubmissionLog(kind string, capacity int) *SubmissionLog {
	if capacity <= 0 {
		capacity = MetricsHistorySize
	}
	return &SubmissionLog{
		kind:    kind,
		history: NewHistory[Submission](capacity),
	}
}

// Kind returns the submission kind the log holds.
func (l *SubmissionLog) Kind() string { return l.kind }

// Record stores s, filling in its ID, kind, timestamp and label, and
// returns the stored copy.
func (l *SubmissionLog) Record(s Submission) Submission {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Kind = l.kind
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	s.Label = s.Timestamp.Format(TimeLabelLayout)

	l.mu.Lock()
	l.history.Append(s)
	l.mu.Unlock()
	return s
}

// Recent returns the stored submissions, newest first.
func (l *SubmissionLog) Recent() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.Newest()
}

// Clear drops every stored submission.
func (l *SubmissionLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history.Clear()
}
