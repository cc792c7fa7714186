// Package influxdb exports board samples to InfluxDB 2.x.
package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/danweinerdev/go-opsboard"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sink implements opsboard.Sink for InfluxDB 2.x. Endpoint samples land in
// the opsboard_endpoint measurement tagged by view, endpoint and tier; poller
// samples in opsboard_poller.
type Sink struct {
	cfg    opsboard.InfluxDBConfig
	logger *slog.Logger

	mu      sync.RWMutex
	client  influxdb2.Client
	writer  api.WriteAPIBlocking
	healthy bool
}

// New creates a new InfluxDB sink.
func New(cfg opsboard.InfluxDBConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:    cfg,
		logger: logger.With("sink", "influxdb"),
	}
}

func (s *Sink) Name() string {
	return "influxdb"
}

// Open connects and fails unless the server reports a passing health check.
func (s *Sink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("connecting to InfluxDB", "url", s.cfg.URL, "org", s.cfg.Org, "bucket", s.cfg.Bucket)

	client := influxdb2.NewClientWithOptions(s.cfg.URL, s.cfg.Token, influxdb2.DefaultOptions())

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	s.client = client
	s.writer = client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
	s.healthy = true

	version := "unknown"
	if health.Version != nil {
		version = *health.Version
	}
	s.logger.Info("connected to InfluxDB", "version", version)
	return nil
}

func (s *Sink) Write(ctx context.Context, samples []*opsboard.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.RLock()
	writer := s.writer
	s.mu.RUnlock()
	if writer == nil {
		return fmt.Errorf("InfluxDB not opened")
	}

	points := make([]*write.Point, 0, len(samples))
	for _, sample := range samples {
		points = append(points, toPoint(sample))
	}

	err := writer.WritePoint(ctx, points...)

	s.mu.Lock()
	s.healthy = err == nil
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to write to InfluxDB: %w", err)
	}

	s.logger.Debug("wrote samples", "count", len(samples))
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
		s.client = nil
		s.writer = nil
		s.logger.Info("InfluxDB connection closed")
	}
	s.healthy = false
	return nil
}

func (s *Sink) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func toPoint(s *opsboard.Sample) *write.Point {
	fields := make(map[string]interface{}, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return influxdb2.NewPoint(s.Measurement, s.Tags, fields, s.Timestamp)
}

var _ opsboard.Sink = (*Sink)(nil)
