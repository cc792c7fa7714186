package opsboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Sink receives exported samples.
type Sink interface {
	// Name returns the sink name for logging.
	Name() string

	// Open prepares the sink for writes.
	Open(ctx context.Context) error

	// Write delivers a batch of samples.
	Write(ctx context.Context, samples []*Sample) error

	// Close releases the sink.
	Close() error

	// Healthy returns true if the sink can accept writes.
	Healthy() bool
}

// Echo writes samples as line protocol to an io.Writer. Useful for debugging
// and for piping into other tools.
type Echo struct {
	logger *slog.Logger

	mu      sync.Mutex
	writer  io.Writer
	healthy bool
}

// NewEcho creates an Echo sink writing to w (stdout when nil).
func NewEcho(w io.Writer, logger *slog.Logger) *Echo {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{
		writer:  w,
		logger:  logger,
		healthy: true,
	}
}

func (e *Echo) Name() string {
	return "echo"
}

func (e *Echo) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = true
	return nil
}

func (e *Echo) Write(ctx context.Context, batch []*Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.healthy {
		return fmt.Errorf("echo sink closed")
	}

	for _, s := range batch {
		if _, err := fmt.Fprintln(e.writer, s.ToLineProtocol()); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}

	e.logger.Debug("echoed samples", "count", len(batch))
	return nil
}

func (e *Echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = false
	return nil
}

func (e *Echo) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

var _ Sink = (*Echo)(nil)
