package opsboard

import (
	"math"
	"time"
)

// Delta is the change between two consecutive stats of one endpoint.
type Delta struct {
	Delta      int64
	Rate       float64
	ErrorDelta int64
	ErrorRate  float64
}

// ComputeDelta derives per-interval counts and rates from two cumulative
// stats. Counter resets clamp to zero. Rate is events per second over
// interval, rounded to two decimals. ErrorRate is zero when no events
// occurred and never exceeds one.
func ComputeDelta(prev, cur EndpointStat, interval time.Duration) Delta {
	d := Delta{
		Delta:      clampDiff(cur.Count, prev.Count),
		ErrorDelta: clampDiff(cur.Errors, prev.Errors),
	}

	if secs := interval.Seconds(); secs > 0 {
		d.Rate = round2(float64(d.Delta) / secs)
	}

	if d.Delta > 0 {
		d.ErrorRate = math.Min(1, float64(d.ErrorDelta)/float64(d.Delta))
	}

	return d
}

func clampDiff(cur, prev int64) int64 {
	if cur <= prev {
		return 0
	}
	return cur - prev
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Baseline holds the previous stat per endpoint so deltas can be computed on
// the next observation. Missing entries act as a zero stat.
type Baseline struct {
	prev map[string]EndpointStat
}

// NewBaseline creates an empty baseline.
func NewBaseline() *Baseline {
	return &Baseline{prev: make(map[string]EndpointStat)}
}

// Previous returns the last observed stat for name, or the zero stat.
func (b *Baseline) Previous(name string) EndpointStat {
	return b.prev[name]
}

// Observe computes the delta against the stored stat and then records cur.
func (b *Baseline) Observe(name string, cur EndpointStat, interval time.Duration) Delta {
	d := ComputeDelta(b.prev[name], cur, interval)
	b.prev[name] = cur
	return d
}

// Reset forgets all stored stats.
func (b *Baseline) Reset() {
	b.prev = make(map[string]EndpointStat)
}
