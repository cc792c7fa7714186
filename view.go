package opsboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrOutOfOrder is returned by View.Apply for a snapshot that is not newer
// than the last applied one.
var ErrOutOfOrder = errors.New("snapshot older than last applied")

// Order selects how history is returned.
type Order int

const (
	// Chronological returns oldest first.
	Chronological Order = iota
	// NewestFirst returns newest first.
	NewestFirst
)

// ParseOrder accepts "asc" and "desc"; anything else is chronological.
func ParseOrder(s string) Order {
	if s == "desc" {
		return NewestFirst
	}
	return Chronological
}

// ViewConfig describes one consumer of the metrics stream.
type ViewConfig struct {
	Name      string   `toml:"name"`
	Endpoints []string `toml:"endpoints"`
	Capacity  int      `toml:"capacity"`
}

// EndpointUpdate is what one applied snapshot produced for one endpoint.
type EndpointUpdate struct {
	Endpoint string
	Stat     EndpointStat
	Delta    Delta
	Tier     Tier
	At       time.Time
}

// ViewState is a point-in-time copy of a view, safe to hold and re-read.
type ViewState struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	Seq        uint64                    `json:"seq"`
	Endpoints  map[string]EndpointStat   `json:"endpoints"`
	History    map[string][]HistoryPoint `json:"history"`
	Latency    map[string][]LatencyPoint `json:"latency"`
	Tiers      map[string]Tier           `json:"tiers"`
	Thresholds Thresholds                `json:"thresholds"`
	Stale      bool                      `json:"stale"`
	LastError  string                    `json:"last_error,omitempty"`
	Updated    time.Time                 `json:"updated"`
}

// Classify maps a latency to a tier using the view's thresholds.
func (s ViewState) Classify(ms float64) Tier {
	return s.Thresholds.Classify(ms)
}

// View assembles snapshots into per-endpoint rolling histories. Each view
// owns its baseline and buffers; nothing is shared between views.
type View struct {
	id       string
	name     string
	required []string
	capacity int

	mu         sync.RWMutex
	thresholds Thresholds
	baseline   *Baseline
	history    map[string]*History[HistoryPoint]
	latency    map[string]*History[LatencyPoint]
	snapshot   *Snapshot
	lastSeq    uint64
	stale      bool
	lastErr    error
	updated    time.Time
	watchers   map[chan ViewState]struct{}
}

// NewView creates an empty view.
func NewView(cfg ViewConfig, thresholds Thresholds) *View {
	if cfg.Capacity <= 0 {
		cfg.Capacity = MetricsHistorySize
	}
	required := append([]string(nil), cfg.Endpoints...)
	sort.Strings(required)

	return &View{
		id:         uuid.NewString(),
		name:       cfg.Name,
		required:   required,
		capacity:   cfg.Capacity,
		thresholds: thresholds,
		baseline:   NewBaseline(),
		history:    make(map[string]*History[HistoryPoint]),
		latency:    make(map[string]*History[LatencyPoint]),
		watchers:   make(map[chan ViewState]struct{}),
	}
}

// ID returns the view instance identifier.
func (v *View) ID() string { return v.id }

// Name returns the configured view name.
func (v *View) Name() string { return v.name }

// Capacity returns the per-endpoint history capacity.
func (v *View) Capacity() int { return v.capacity }

// Apply folds snap into the view. A malformed snapshot marks the view stale
// and changes nothing else. An out-of-order snapshot is ignored.
func (v *View) Apply(snap *Snapshot) ([]EndpointUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap != nil && snap.Seq != 0 && snap.Seq <= v.lastSeq {
		return nil, fmt.Errorf("%w: seq %d <= %d", ErrOutOfOrder, snap.Seq, v.lastSeq)
	}

	if err := snap.Validate(v.required); err != nil {
		v.failLocked(err)
		return nil, err
	}

	at := snap.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}
	label := at.Format(TimeLabelLayout)

	names := v.required
	if len(names) == 0 {
		names = snap.Names()
	}

	updates := make([]EndpointUpdate, 0, len(names))
	for _, name := range names {
		stat := snap.Endpoints[name]
		d := v.baseline.Observe(name, stat, snap.Interval)

		v.historyFor(name).Append(HistoryPoint{
			Timestamp: at,
			Label:     label,
			Delta:     d.Delta,
			Rate:      d.Rate,
			ErrorRate: d.ErrorRate,
		})
		v.latencyFor(name).Append(LatencyPoint{
			Timestamp: at,
			Label:     label,
			AvgMs:     stat.AvgLatencyMs,
			P95Ms:     stat.P95LatencyMs,
		})

		updates = append(updates, EndpointUpdate{
			Endpoint: name,
			Stat:     stat,
			Delta:    d,
			Tier:     v.thresholds.Classify(stat.AvgLatencyMs),
			At:       at,
		})
	}

	v.snapshot = snap.Clone()
	v.lastSeq = snap.Seq
	v.stale = false
	v.lastErr = nil
	v.updated = at
	v.notifyLocked()

	return updates, nil
}

// Fail records a fetch failure. Existing data is kept and flagged stale.
func (v *View) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failLocked(err)
}

func (v *View) failLocked(err error) {
	v.stale = true
	v.lastErr = err
	v.notifyLocked()
}

// Reset clears all histories and baselines.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.baseline.Reset()
	v.history = make(map[string]*History[HistoryPoint])
	v.latency = make(map[string]*History[LatencyPoint])
	v.notifyLocked()
}

// SetThresholds replaces the latency cutoffs.
func (v *View) SetThresholds(t Thresholds) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.thresholds = t
}

// Classify maps a latency to a tier using the view's thresholds.
func (v *View) Classify(ms float64) Tier {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.thresholds.Classify(ms)
}

// State returns a copy of the view with history in the requested order.
func (v *View) State(order Order) ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stateLocked(order)
}

func (v *View) stateLocked(order Order) ViewState {
	s := ViewState{
		ID:         v.id,
		Name:       v.name,
		Seq:        v.lastSeq,
		Endpoints:  make(map[string]EndpointStat),
		History:    make(map[string][]HistoryPoint, len(v.history)),
		Latency:    make(map[string][]LatencyPoint, len(v.latency)),
		Tiers:      make(map[string]Tier),
		Thresholds: v.thresholds,
		Stale:      v.stale,
		Updated:    v.updated,
	}
	if v.lastErr != nil {
		s.LastError = v.lastErr.Error()
	}

	for name, h := range v.history {
		if order == NewestFirst {
			s.History[name] = h.Newest()
		} else {
			s.History[name] = h.Points()
		}
	}
	for name, h := range v.latency {
		if order == NewestFirst {
			s.Latency[name] = h.Newest()
		} else {
			s.Latency[name] = h.Points()
		}
	}

	if v.snapshot != nil {
		for name, stat := range v.snapshot.Endpoints {
			s.Endpoints[name] = stat
		}
	}
	for _, name := range v.trackedLocked() {
		stat, ok := v.snapshot.Stat(name)
		if !ok {
			s.Tiers[name] = TierNeutral
			continue
		}
		s.Tiers[name] = v.thresholds.ClassifyStat(&stat)
	}

	return s
}

// trackedLocked returns the required endpoints plus any other endpoint in the
// last snapshot, sorted.
func (v *View) trackedLocked() []string {
	names := v.snapshot.Names()
	for _, name := range v.required {
		if _, ok := v.snapshot.Stat(name); !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Watch returns a channel that receives the latest state after every change
// and a function that stops the subscription. Slow receivers only ever see
// the most recent state.
func (v *View) Watch() (<-chan ViewState, func()) {
	ch := make(chan ViewState, 1)

	v.mu.Lock()
	v.watchers[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.watchers, ch)
			v.mu.Unlock()
		})
	}
}

func (v *View) notifyLocked() {
	if len(v.watchers) == 0 {
		return
	}
	state := v.stateLocked(Chronological)
	for ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

func (v *View) historyFor(name string) *History[HistoryPoint] {
	h, ok := v.history[name]
	if !ok {
		h = NewHistory[HistoryPoint](v.capacity)
		v.history[name] = h
	}
	return h
}

func (v *View) latencyFor(name string) *History[LatencyPoint] {
	h, ok := v.latency[name]
	if !ok {
		h = NewHistory[LatencyPoint](v.capacity)
		v.latency[name] = h
	}
	return h
}
