package opsboard

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestEndpointStatValidate(t *testing.T) {
	tests := []struct {
		name    string
		stat    EndpointStat
		wantErr bool
	}{
		{"zero", EndpointStat{}, false},
		{"typical", EndpointStat{Count: 10, Errors: 1, AvgLatencyMs: 12.5, P95LatencyMs: 40}, false},
		{"negative count", EndpointStat{Count: -1}, true},
		{"negative errors", EndpointStat{Errors: -1}, true},
		{"nan avg", EndpointStat{AvgLatencyMs: math.NaN()}, true},
		{"inf p95", EndpointStat{P95LatencyMs: math.Inf(1)}, true},
		{"negative latency", EndpointStat{AvgLatencyMs: -3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stat.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshotValidate(t *testing.T) {
	snap := &Snapshot{Endpoints: map[string]EndpointStat{"classifier": {Count: 1}}}

	if err := snap.Validate([]string{"classifier"}); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := snap.Validate([]string{"llm"}); !errors.Is(err, ErrMalformedSnapshot) {
		t.Errorf("Validate(missing) error = %v, want ErrMalformedSnapshot", err)
	}

	var nilSnap *Snapshot
	if err := nilSnap.Validate(nil); !errors.Is(err, ErrMalformedSnapshot) {
		t.Errorf("nil Validate() error = %v, want ErrMalformedSnapshot", err)
	}
}

func TestSnapshotNamesAndStat(t *testing.T) {
	snap := &Snapshot{Endpoints: map[string]EndpointStat{
		"llm":        {Count: 2},
		"classifier": {Count: 1},
	}}

	if got := snap.Names(); !slices.Equal(got, []string{"classifier", "llm"}) {
		t.Errorf("Names() = %v, want sorted", got)
	}
	if st, ok := snap.Stat("llm"); !ok || st.Count != 2 {
		t.Errorf("Stat(llm) = %+v, %v", st, ok)
	}

	var nilSnap *Snapshot
	if _, ok := nilSnap.Stat("llm"); ok {
		t.Error("Stat() on nil snapshot should report absent")
	}
	if nilSnap.Names() != nil {
		t.Error("Names() on nil snapshot should be nil")
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := &Snapshot{Seq: 3, Endpoints: map[string]EndpointStat{"classifier": {Count: 1}}}
	clone := snap.Clone()

	clone.Endpoints["classifier"] = EndpointStat{Count: 99}
	if snap.Endpoints["classifier"].Count != 1 {
		t.Error("Clone() shares the endpoint map")
	}
	if clone.Seq != 3 {
		t.Errorf("clone Seq = %d, want 3", clone.Seq)
	}

	var nilSnap *Snapshot
	if nilSnap.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
