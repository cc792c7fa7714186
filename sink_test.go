package opsboard

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEchoSink(t *testing.T) {
	var buf bytes.Buffer
	echo := NewEcho(&buf, nil)

	if echo.Name() != "echo" {
		t.Errorf("Name() = %q, want %q", echo.Name(), "echo")
	}
	if !echo.Healthy() {
		t.Error("Echo should be healthy initially")
	}

	ctx := context.Background()
	if err := echo.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []*Sample{
		NewSample("opsboard_endpoint").WithTag("endpoint", "llm").WithField("rate", 2.5).WithTimestamp(ts),
	}

	if err := echo.Write(ctx, samples); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "endpoint=llm") {
		t.Errorf("Output should contain tag, got %q", output)
	}
	if !strings.Contains(output, "rate=2.5") {
		t.Errorf("Output should contain field, got %q", output)
	}

	if err := echo.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if echo.Healthy() {
		t.Error("Echo should not be healthy after close")
	}
	if err := echo.Write(ctx, samples); err == nil {
		t.Error("Write() after Close() should fail")
	}
}

// mockSink records writes for assertions.
type mockSink struct {
	name     string
	openErr  error
	writeErr error
	closeErr error

	mu      sync.Mutex
	healthy bool
	opened  bool
	written [][]*Sample
	closed  bool
}

func (m *mockSink) Name() string { return m.name }
func (m *mockSink) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return m.openErr
}
func (m *mockSink) Write(ctx context.Context, samples []*Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, samples)
	return m.writeErr
}
func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}
func (m *mockSink) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}
func (m *mockSink) samples() []*Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Sample
	for _, b := range m.written {
		out = append(out, b...)
	}
	return out
}
