package promexporter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danweinerdev/go-opsboard"
)

func scrape(t *testing.T, s *Sink) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestNewSink(t *testing.T) {
	s := New(opsboard.PrometheusConfig{Port: 9999, Path: "/metrics"}, nil)

	if s.Name() != "prometheus" {
		t.Errorf("Name() = %q, want %q", s.Name(), "prometheus")
	}
	if s.Healthy() {
		t.Error("Sink should not be healthy before Open()")
	}
}

func TestSinkIndependentRegistries(t *testing.T) {
	// Each sink owns its registry, so two sinks never collide.
	New(opsboard.PrometheusConfig{}, nil)
	New(opsboard.PrometheusConfig{}, nil)
}

func TestSinkWriteEndpointSample(t *testing.T) {
	s := New(opsboard.PrometheusConfig{}, nil)

	u := opsboard.EndpointUpdate{
		Endpoint: "classifier",
		Stat:     opsboard.EndpointStat{Count: 150, Errors: 3, AvgLatencyMs: 220, P95LatencyMs: 480},
		Delta:    opsboard.Delta{Delta: 50, Rate: 10, ErrorDelta: 1, ErrorRate: 0.02},
		Tier:     opsboard.TierWarning,
		At:       time.Now(),
	}
	sample := opsboard.SampleFromUpdate("kafka", u)

	if err := s.Write(context.Background(), []*opsboard.Sample{sample}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	body := scrape(t, s)
	for _, want := range []string{
		`opsboard_endpoint_rate{endpoint="classifier",view="kafka"} 10`,
		`opsboard_endpoint_delta{endpoint="classifier",view="kafka"} 50`,
		`opsboard_endpoint_severity{endpoint="classifier",view="kafka"} 2`,
		`opsboard_endpoint_avg_latency_ms{endpoint="classifier",view="kafka"} 220`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestSinkWriteOverwrites(t *testing.T) {
	s := New(opsboard.PrometheusConfig{}, nil)
	ctx := context.Background()

	first := opsboard.NewSample(opsboard.EndpointMeasurement).
		WithTag("view", "overview").WithTag("endpoint", "llm").WithField("rate", 1)
	second := opsboard.NewSample(opsboard.EndpointMeasurement).
		WithTag("view", "overview").WithTag("endpoint", "llm").WithField("rate", 4.5)

	s.Write(ctx, []*opsboard.Sample{first})
	s.Write(ctx, []*opsboard.Sample{second})

	body := scrape(t, s)
	if !strings.Contains(body, `opsboard_endpoint_rate{endpoint="llm",view="overview"} 4.5`) {
		t.Errorf("gauge should hold the latest value, got:\n%s", body)
	}
}

func TestSinkWritePollerSample(t *testing.T) {
	s := New(opsboard.PrometheusConfig{}, nil)

	sample := opsboard.SampleFromStats("metrics", opsboard.PollStats{TotalPolls: 7, FailedPolls: 2})
	s.Write(context.Background(), []*opsboard.Sample{sample})

	body := scrape(t, s)
	if !strings.Contains(body, `opsboard_poller_polls{view="metrics"} 7`) {
		t.Errorf("scrape output missing poller gauge:\n%s", body)
	}
	if !strings.Contains(body, `opsboard_poller_failed{view="metrics"} 2`) {
		t.Errorf("scrape output missing failed gauge:\n%s", body)
	}
}

func TestGaugeSetUnknownMeasurement(t *testing.T) {
	s := New(opsboard.PrometheusConfig{}, nil)

	if s.gauges.update(opsboard.NewSample("cpu").WithField("usage", 1)) {
		t.Error("update() should report unknown measurements")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"with-dash", "with_dash"},
		{"with.dot", "with_dot"},
		{"with space", "with_space"},
		{"123start", "_123start"},
		{"UPPER_case", "UPPER_case"},
	}

	for _, tt := range tests {
		got := sanitizeName(tt.input)
		if got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
