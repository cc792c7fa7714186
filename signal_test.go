package opsboard

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestSignalHandlerStart(t *testing.T) {
	handler := NewSignalHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCtx := handler.Start(ctx)

	select {
	case <-sigCtx.Done():
		t.Error("Context should not be cancelled yet")
	default:
	}

	cancel()

	select {
	case <-sigCtx.Done():
	case <-time.After(1 * time.Second):
		t.Error("Context should be cancelled after parent cancel")
	}
}

func TestSignalHandlerChannels(t *testing.T) {
	handler := NewSignalHandler(nil)

	select {
	case <-handler.Shutdown():
		t.Error("Shutdown channel should not be closed initially")
	default:
	}

	select {
	case <-handler.Reload():
		t.Error("Reload channel should be empty initially")
	default:
	}

	select {
	case <-handler.Toggle():
		t.Error("Toggle channel should be empty initially")
	default:
	}
}

func TestSignalHandlerToggle(t *testing.T) {
	handler := NewSignalHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler.Start(ctx)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}

	select {
	case <-handler.Toggle():
	case <-time.After(2 * time.Second):
		t.Fatal("Toggle channel should receive after SIGUSR1")
	}
}
