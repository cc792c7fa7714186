package opsboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PipelineConfig configures the export pipeline.
type PipelineConfig struct {
	BatchSize     int
	MaxBuffer     int
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        *slog.Logger
}

// DefaultPipelineConfig returns pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BatchSize:     50,
		MaxBuffer:     1000,
		FlushInterval: 5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		Logger:        slog.Default(),
	}
}

// Pipeline buffers samples and delivers them to sinks in batches. When no
// sink keeps up, the buffer is capped at MaxBuffer and the oldest samples
// are dropped.
type Pipeline struct {
	sinks         []Sink
	batchSize     int
	maxBuffer     int
	flushInterval time.Duration
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []*Sample
	dropped int64

	flushMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPipeline creates an export pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	def := DefaultPipelineConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxBuffer < cfg.BatchSize {
		cfg.MaxBuffer = max(def.MaxBuffer, cfg.BatchSize)
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		batchSize:     cfg.BatchSize,
		maxBuffer:     cfg.MaxBuffer,
		flushInterval: cfg.FlushInterval,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        cfg.Logger,
		buffer:        make([]*Sample, 0, cfg.BatchSize),
		done:          make(chan struct{}),
	}
}

// AddSink adds a sink. Must be called before Start.
func (p *Pipeline) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Start opens every sink and begins periodic flushing.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, s := range p.sinks {
		if err := s.Open(ctx); err != nil {
			return err
		}
		p.logger.Info("sink opened", "sink", s.Name())
	}

	p.wg.Add(1)
	go p.flushLoop(ctx)

	return nil
}

// Stop halts periodic flushing, flushes what is left and closes the sinks.
func (p *Pipeline) Stop(ctx context.Context) error {
	close(p.done)
	p.wg.Wait()

	if err := p.Flush(ctx); err != nil {
		p.logger.Error("final flush failed", "error", err)
	}

	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.logger.Error("sink close failed", "sink", s.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Push queues samples for delivery. Invalid samples are dropped.
func (p *Pipeline) Push(samples ...*Sample) {
	p.mu.Lock()
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			p.logger.Warn("invalid sample dropped", "measurement", s.Measurement, "error", err)
			continue
		}
		p.buffer = append(p.buffer, s)
	}
	if over := len(p.buffer) - p.maxBuffer; over > 0 {
		p.buffer = append([]*Sample(nil), p.buffer[over:]...)
		p.dropped += int64(over)
		p.logger.Warn("export buffer full, dropped oldest samples", "count", over)
	}
	shouldFlush := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if shouldFlush {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("batch flush failed", "error", err)
			}
		}()
	}
}

// Flush sends all buffered samples to healthy sinks.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.buffer
	p.buffer = make([]*Sample, 0, p.batchSize)
	p.mu.Unlock()

	p.logger.Debug("flushing samples", "count", len(batch))

	var errs []error
	for _, s := range p.sinks {
		if !s.Healthy() {
			p.logger.Warn("skipping unhealthy sink", "sink", s.Name())
			continue
		}
		if err := p.writeWithRetry(ctx, s, batch); err != nil {
			p.logger.Error("sink write failed", "sink", s.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) writeWithRetry(ctx context.Context, s Sink, batch []*Sample) error {
	var lastErr error
	for attempt := 1; attempt <= p.retryAttempts; attempt++ {
		err := s.Write(ctx, batch)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < p.retryAttempts {
			p.logger.Warn("write failed, retrying",
				"sink", s.Name(),
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
	}
	return lastErr
}

func (p *Pipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("periodic flush failed", "error", err)
			}
		}
	}
}

// BufferLen returns the number of queued samples.
func (p *Pipeline) BufferLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Dropped returns how many samples were discarded because the buffer was full.
func (p *Pipeline) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// SinkCount returns the number of configured sinks.
func (p *Pipeline) SinkCount() int {
	return len(p.sinks)
}
