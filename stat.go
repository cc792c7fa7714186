package opsboard

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrFetch marks a failed read of the metrics source.
	ErrFetch = errors.New("metrics fetch failed")

	// ErrMalformedSnapshot marks a structurally invalid snapshot. A malformed
	// snapshot is never partially applied.
	ErrMalformedSnapshot = errors.New("malformed metrics snapshot")
)

// EndpointStat is the cumulative state of one backend endpoint as reported
// by the gateway's metrics overview.
type EndpointStat struct {
	Count        int64   `json:"count"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// Validate checks that counters are non-negative and latencies are finite.
func (s EndpointStat) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("count is negative: %d", s.Count)
	}
	if s.Errors < 0 {
		return fmt.Errorf("errors is negative: %d", s.Errors)
	}
	if !validLatency(s.AvgLatencyMs) {
		return fmt.Errorf("avg_latency_ms is invalid: %v", s.AvgLatencyMs)
	}
	if !validLatency(s.P95LatencyMs) {
		return fmt.Errorf("p95_latency_ms is invalid: %v", s.P95LatencyMs)
	}
	return nil
}

func validLatency(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Snapshot is one point-in-time read of the metrics source. A newer snapshot
// fully replaces an older one.
type Snapshot struct {
	// Seq is assigned by the poller and increases with every fetch.
	Seq uint64

	// FetchedAt is the time the fetch completed.
	FetchedAt time.Time

	// Interval is the poll cadence in effect when the fetch was issued.
	Interval time.Duration

	Endpoints map[string]EndpointStat
}

// Stat returns the stat for the named endpoint.
func (s *Snapshot) Stat(name string) (EndpointStat, bool) {
	if s == nil {
		return EndpointStat{}, false
	}
	st, ok := s.Endpoints[name]
	return st, ok
}

// Names returns the endpoint names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Endpoints))
	for name := range s.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every endpoint and that all required endpoints are present.
// The returned error wraps ErrMalformedSnapshot.
func (s *Snapshot) Validate(required []string) error {
	if s == nil || s.Endpoints == nil {
		return fmt.Errorf("%w: no endpoints", ErrMalformedSnapshot)
	}
	for _, name := range required {
		if _, ok := s.Endpoints[name]; !ok {
			return fmt.Errorf("%w: missing endpoint %q", ErrMalformedSnapshot, name)
		}
	}
	for _, name := range s.Names() {
		if err := s.Endpoints[name].Validate(); err != nil {
			return fmt.Errorf("%w: endpoint %q: %v", ErrMalformedSnapshot, name, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := &Snapshot{
		Seq:       s.Seq,
		FetchedAt: s.FetchedAt,
		Interval:  s.Interval,
		Endpoints: make(map[string]EndpointStat, len(s.Endpoints)),
	}
	for k, v := range s.Endpoints {
		clone.Endpoints[k] = v
	}
	return clone
}
