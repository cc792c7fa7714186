// Package promexporter serves board samples as Prometheus gauges.
package promexporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danweinerdev/go-opsboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	endpointFields = []string{
		"count", "errors", "delta", "error_delta", "rate", "error_rate",
		"avg_latency_ms", "p95_latency_ms", "severity",
	}
	pollerFields = []string{
		"polls", "failed", "skipped", "discarded", "duration_ms", "stale",
	}
)

// Sink implements opsboard.Sink for Prometheus. It runs an HTTP server that
// exposes one gauge per sample field at the configured path.
type Sink struct {
	cfg      opsboard.PrometheusConfig
	registry *prometheus.Registry
	gauges   *gaugeSet
	logger   *slog.Logger

	mu      sync.RWMutex
	server  *http.Server
	healthy bool
}

// New creates a new Prometheus exporter sink with its own registry.
func New(cfg opsboard.PrometheusConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	return &Sink{
		cfg:      cfg,
		registry: reg,
		gauges:   newGaugeSet(reg),
		logger:   logger.With("sink", "prometheus"),
	}
}

func (s *Sink) Name() string {
	return "prometheus"
}

// Handler returns the scrape handler for the sink's registry.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Sink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.server = server

	go func() {
		s.logger.Info("starting Prometheus server", "addr", addr, "path", s.cfg.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Prometheus server error", "error", err)
			s.mu.Lock()
			s.healthy = false
			s.mu.Unlock()
		}
	}()

	s.healthy = true
	return nil
}

func (s *Sink) Write(ctx context.Context, samples []*opsboard.Sample) error {
	var skipped int
	for _, sample := range samples {
		if !s.gauges.update(sample) {
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.Debug("ignored samples with unknown measurement", "count", skipped)
	}
	s.logger.Debug("updated Prometheus gauges", "count", len(samples)-skipped)
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("error shutting down Prometheus server", "error", err)
			return err
		}
		s.server = nil
		s.logger.Info("Prometheus server stopped")
	}

	s.healthy = false
	return nil
}

func (s *Sink) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

var _ opsboard.Sink = (*Sink)(nil)

// gaugeSet holds one gauge vector per known measurement field.
type gaugeSet struct {
	endpoint map[string]*prometheus.GaugeVec
	poller   map[string]*prometheus.GaugeVec
}

func newGaugeSet(reg prometheus.Registerer) *gaugeSet {
	g := &gaugeSet{
		endpoint: make(map[string]*prometheus.GaugeVec, len(endpointFields)),
		poller:   make(map[string]*prometheus.GaugeVec, len(pollerFields)),
	}
	for _, f := range endpointFields {
		g.endpoint[f] = newGauge(reg, opsboard.EndpointMeasurement, f, "view", "endpoint")
	}
	for _, f := range pollerFields {
		g.poller[f] = newGauge(reg, opsboard.PollerMeasurement, f, "view")
	}
	return g
}

func newGauge(reg prometheus.Registerer, measurement, field string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitizeName(measurement + "_" + field),
		Help: fmt.Sprintf("Latest %s of the %s measurement.", strings.ReplaceAll(field, "_", " "), measurement),
	}, labels)
	reg.MustRegister(vec)
	return vec
}

// update sets the gauges for s and reports whether its measurement is known.
func (g *gaugeSet) update(s *opsboard.Sample) bool {
	var (
		vecs   map[string]*prometheus.GaugeVec
		labels prometheus.Labels
	)
	switch s.Measurement {
	case opsboard.EndpointMeasurement:
		vecs = g.endpoint
		labels = prometheus.Labels{"view": s.Tags["view"], "endpoint": s.Tags["endpoint"]}
	case opsboard.PollerMeasurement:
		vecs = g.poller
		labels = prometheus.Labels{"view": s.Tags["view"]}
	default:
		return false
	}

	for field, value := range s.Fields {
		if vec, ok := vecs[field]; ok {
			vec.With(labels).Set(value)
		}
	}
	return true
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			sb.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
