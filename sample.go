package opsboard

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Measurement names used for exported samples.
const (
	EndpointMeasurement = "opsboard_endpoint"
	PollerMeasurement   = "opsboard_poller"
)

// Sample is one exported data point derived from an applied snapshot.
type Sample struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Timestamp   time.Time
}

// NewSample creates an empty sample stamped with the current time.
func NewSample(measurement string) *Sample {
	return &Sample{
		Measurement: measurement,
		Tags:        make(map[string]string),
		Fields:      make(map[string]float64),
		Timestamp:   time.Now(),
	}
}

// SampleFromUpdate converts one endpoint update of a view into a sample.
func SampleFromUpdate(view string, u EndpointUpdate) *Sample {
	return NewSample(EndpointMeasurement).
		WithTag("view", view).
		WithTag("endpoint", u.Endpoint).
		WithTag("tier", string(u.Tier)).
		WithField("count", float64(u.Stat.Count)).
		WithField("errors", float64(u.Stat.Errors)).
		WithField("delta", float64(u.Delta.Delta)).
		WithField("error_delta", float64(u.Delta.ErrorDelta)).
		WithField("rate", u.Delta.Rate).
		WithField("error_rate", u.Delta.ErrorRate).
		WithField("avg_latency_ms", u.Stat.AvgLatencyMs).
		WithField("p95_latency_ms", u.Stat.P95LatencyMs).
		WithField("severity", float64(u.Tier.Severity())).
		WithTimestamp(u.At)
}

// SampleFromStats converts poller statistics into a sample.
func SampleFromStats(view string, s PollStats) *Sample {
	stale := 0.0
	if s.Stale() {
		stale = 1
	}
	return NewSample(PollerMeasurement).
		WithTag("view", view).
		WithField("polls", float64(s.TotalPolls)).
		WithField("failed", float64(s.FailedPolls)).
		WithField("skipped", float64(s.SkippedTicks)).
		WithField("discarded", float64(s.Discarded)).
		WithField("duration_ms", float64(s.LastDuration)/float64(time.Millisecond)).
		WithField("stale", stale)
}

// WithTag adds a single tag.
func (s *Sample) WithTag(key, value string) *Sample {
	s.Tags[key] = value
	return s
}

// WithField adds a single field.
func (s *Sample) WithField(key string, value float64) *Sample {
	s.Fields[key] = value
	return s
}

// WithTimestamp sets the timestamp. A zero time is ignored.
func (s *Sample) WithTimestamp(t time.Time) *Sample {
	if !t.IsZero() {
		s.Timestamp = t
	}
	return s
}

// Validate checks that the sample can be exported.
func (s *Sample) Validate() error {
	if s.Measurement == "" {
		return fmt.Errorf("measurement name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	for k, v := range s.Fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("field %q is not finite", k)
		}
	}
	return nil
}

// ToLineProtocol renders the sample in InfluxDB line protocol with tags and
// fields in sorted order.
func (s *Sample) ToLineProtocol() string {
	var sb strings.Builder

	sb.WriteString(escape(s.Measurement))

	for _, k := range sortedKeys(s.Tags) {
		sb.WriteByte(',')
		sb.WriteString(escape(k))
		sb.WriteByte('=')
		sb.WriteString(escape(s.Tags[k]))
	}

	sb.WriteByte(' ')

	for i, k := range sortedKeys(s.Fields) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(escape(k))
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(s.Fields[k], 'g', -1, 64))
	}

	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(s.Timestamp.UnixNano(), 10))

	return sb.String()
}

var lineEscaper = strings.NewReplacer(",", "\\,", "=", "\\=", " ", "\\ ")

func escape(s string) string {
	return lineEscaper.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
