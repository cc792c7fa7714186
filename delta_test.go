package opsboard

import (
	"math"
	"testing"
	"testing/quick"
	"time"
)

func TestComputeDelta(t *testing.T) {
	tests := []struct {
		name     string
		prev     EndpointStat
		cur      EndpointStat
		interval time.Duration
		want     Delta
	}{
		{
			name:     "steady traffic",
			prev:     EndpointStat{Count: 100, Errors: 2},
			cur:      EndpointStat{Count: 150, Errors: 5},
			interval: 5000 * time.Millisecond,
			want:     Delta{Delta: 50, Rate: 10, ErrorDelta: 3, ErrorRate: 0.06},
		},
		{
			name:     "backend restart",
			prev:     EndpointStat{Count: 100, Errors: 2},
			cur:      EndpointStat{Count: 40, Errors: 1},
			interval: 5 * time.Second,
			want:     Delta{},
		},
		{
			name:     "first observation",
			prev:     EndpointStat{},
			cur:      EndpointStat{Count: 12, Errors: 3},
			interval: 5 * time.Second,
			want:     Delta{Delta: 12, Rate: 2.4, ErrorDelta: 3, ErrorRate: 0.25},
		},
		{
			name:     "no traffic",
			prev:     EndpointStat{Count: 10, Errors: 1},
			cur:      EndpointStat{Count: 10, Errors: 1},
			interval: 5 * time.Second,
			want:     Delta{},
		},
		{
			name:     "errors without requests",
			prev:     EndpointStat{Count: 10, Errors: 1},
			cur:      EndpointStat{Count: 10, Errors: 4},
			interval: 5 * time.Second,
			want:     Delta{ErrorDelta: 3},
		},
		{
			name:     "more errors than requests",
			prev:     EndpointStat{Count: 10, Errors: 0},
			cur:      EndpointStat{Count: 12, Errors: 5},
			interval: time.Second,
			want:     Delta{Delta: 2, Rate: 2, ErrorDelta: 5, ErrorRate: 1},
		},
		{
			name:     "rate rounds to two decimals",
			prev:     EndpointStat{Count: 0},
			cur:      EndpointStat{Count: 10},
			interval: 3 * time.Second,
			want:     Delta{Delta: 10, Rate: 3.33},
		},
		{
			name:     "zero interval",
			prev:     EndpointStat{Count: 0},
			cur:      EndpointStat{Count: 10},
			interval: 0,
			want:     Delta{Delta: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDelta(tt.prev, tt.cur, tt.interval)
			if got != tt.want {
				t.Errorf("ComputeDelta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeDeltaClamp(t *testing.T) {
	f := func(a, b uint32) bool {
		prev := EndpointStat{Count: int64(a)}
		cur := EndpointStat{Count: int64(b)}
		d := ComputeDelta(prev, cur, 5*time.Second)
		if b >= a {
			return d.Delta == int64(b)-int64(a)
		}
		return d.Delta == 0
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestComputeDeltaRate(t *testing.T) {
	f := func(a, b uint32, ms uint16) bool {
		interval := time.Duration(ms)*time.Millisecond + time.Millisecond
		d := ComputeDelta(EndpointStat{Count: int64(a)}, EndpointStat{Count: int64(b)}, interval)
		want := math.Round(float64(d.Delta)/interval.Seconds()*100) / 100
		return d.Rate == want && d.Rate >= 0
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestComputeDeltaZeroDeltaZeroErrorRate(t *testing.T) {
	f := func(count uint32, prevErr, curErr uint16) bool {
		prev := EndpointStat{Count: int64(count), Errors: int64(prevErr)}
		cur := EndpointStat{Count: int64(count), Errors: int64(curErr)}
		return ComputeDelta(prev, cur, 5*time.Second).ErrorRate == 0
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestBaseline(t *testing.T) {
	b := NewBaseline()

	if got := b.Previous("classifier"); got != (EndpointStat{}) {
		t.Errorf("Previous() on empty baseline = %+v, want zero", got)
	}

	d := b.Observe("classifier", EndpointStat{Count: 100, Errors: 2}, 5*time.Second)
	if d.Delta != 100 {
		t.Errorf("first Delta = %d, want 100", d.Delta)
	}

	d = b.Observe("classifier", EndpointStat{Count: 150, Errors: 5}, 5*time.Second)
	want := Delta{Delta: 50, Rate: 10, ErrorDelta: 3, ErrorRate: 0.06}
	if d != want {
		t.Errorf("second Observe() = %+v, want %+v", d, want)
	}

	// Endpoints keep independent baselines.
	d = b.Observe("llm", EndpointStat{Count: 7}, 5*time.Second)
	if d.Delta != 7 {
		t.Errorf("llm Delta = %d, want 7", d.Delta)
	}

	b.Reset()
	if got := b.Previous("classifier"); got != (EndpointStat{}) {
		t.Errorf("Previous() after Reset() = %+v, want zero", got)
	}
}
