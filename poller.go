package opsboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Disabled is the interval that turns polling off.
const Disabled time.Duration = 0

// FetchFunc reads the current per-endpoint stats from the metrics source.
// It must return an error rather than a partial result.
type FetchFunc func(ctx context.Context) (map[string]EndpointStat, error)

// Subscriber receives poller output. Calls are made from the poller's run
// loop, one at a time.
type Subscriber interface {
	OnSnapshot(snap *Snapshot)
	OnError(err error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Poller fetches snapshots on a fixed interval. At most one fetch is in
// flight: a tick that fires while the previous fetch is still pending is
// skipped. Changing the interval cancels the pending ticker and any in-flight
// fetch, then restarts with an immediate fetch.
type Poller struct {
	name    string
	fetch   FetchFunc
	timeout time.Duration
	logger  *slog.Logger

	// gen is bumped on every schedule change; results from an older
	// generation are dropped. deliverMu is held while gen is bumped and
	// while a result is checked against it and delivered.
	gen       atomic.Uint64
	deliverMu sync.Mutex
	changed   chan struct{}

	mu          sync.Mutex
	interval    time.Duration
	cancelFetch context.CancelFunc
	subscribers []Subscriber
	last        *Snapshot
	lastErr     error
	seq         uint64

	stats statsTracker
}

type fetchResult struct {
	gen       uint64
	seq       uint64
	interval  time.Duration
	endpoints map[string]EndpointStat
	err       error
	duration  time.Duration
}

// NewPoller creates a poller. A negative interval is treated as Disabled.
func NewPoller(name string, fetch FetchFunc, cfg PollerConfig) *Poller {
	if cfg.Interval < 0 {
		cfg.Interval = Disabled
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		name:     name,
		fetch:    fetch,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With("poller", name),
		changed:  make(chan struct{}, 1),
		interval: cfg.Interval,
	}
}

// Name returns the poller name.
func (p *Poller) Name() string { return p.name }

// Subscribe registers s for snapshots and errors.
func (p *Poller) Subscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, s)
}

// Interval returns the current interval, or Disabled.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Enabled reports whether polling is on.
func (p *Poller) Enabled() bool {
	return p.Interval() != Disabled
}

// SetInterval changes the cadence. Any in-flight fetch is invalidated before
// this returns, so its result never reaches subscribers. A delivery already
// under way completes first. Must not be called from a Subscriber.
func (p *Poller) SetInterval(d time.Duration) {
	if d < 0 {
		d = Disabled
	}

	p.deliverMu.Lock()
	p.mu.Lock()
	p.interval = d
	p.gen.Add(1)
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.mu.Unlock()
	p.deliverMu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// Last returns a copy of the last good snapshot and the last error, if any.
func (p *Poller) Last() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.Clone(), p.lastErr
}

// Stats returns a snapshot of polling statistics.
func (p *Poller) Stats() PollStats {
	return p.stats.snapshot()
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	results := make(chan fetchResult, 1)

	var (
		ticker   *time.Ticker
		tick     <-chan time.Time
		inflight bool
		applied  uint64
	)

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()
	defer p.cancelInflight()

	start := func() {
		if inflight {
			p.stats.recordSkip()
			p.logger.Debug("previous fetch still pending, skipping tick")
			return
		}
		inflight = true
		p.startFetch(ctx, results)
	}

	schedule := func() {
		stopTicker()
		inflight = false

		interval := p.Interval()
		if interval == Disabled {
			p.logger.Info("polling disabled")
			return
		}
		p.logger.Info("polling scheduled", "interval", interval)
		ticker = time.NewTicker(interval)
		tick = ticker.C
		start()
	}

	select {
	case <-p.changed:
	default:
	}
	schedule()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopped")
			return nil

		case <-p.changed:
			schedule()

		case <-tick:
			start()

		case r := <-results:
			if ctx.Err() != nil {
				return nil
			}
			if r.gen != p.gen.Load() {
				p.stats.recordDiscard()
				p.logger.Debug("dropping result of cancelled fetch", "seq", r.seq)
				continue
			}
			inflight = false
			p.clearCancel()

			if r.err != nil {
				p.handleError(r.gen, r.err, r.duration)
				continue
			}
			if r.seq <= applied {
				p.stats.recordDiscard()
				continue
			}
			snap, err := p.buildSnapshot(r)
			if err != nil {
				p.handleError(r.gen, err, r.duration)
				continue
			}
			if p.handleSnapshot(r.gen, snap, r.duration) {
				applied = r.seq
			}
		}
	}
}

// Poll performs one synchronous fetch and delivers the outcome to
// subscribers. It must not be called while Run is active.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	interval := p.interval
	gen := p.gen.Load()
	p.mu.Unlock()

	fctx, cancel := p.fetchContext(ctx)
	defer cancel()

	start := time.Now()
	endpoints, err := p.fetch(fctx)
	r := fetchResult{
		seq:       seq,
		interval:  interval,
		endpoints: endpoints,
		err:       err,
		duration:  time.Since(start),
	}
	if err != nil {
		p.handleError(gen, err, r.duration)
		return err
	}

	snap, err := p.buildSnapshot(r)
	if err != nil {
		p.handleError(gen, err, r.duration)
		return err
	}
	p.handleSnapshot(gen, snap, r.duration)
	return nil
}

func (p *Poller) startFetch(ctx context.Context, results chan<- fetchResult) {
	fctx, cancel := p.fetchContext(ctx)

	p.mu.Lock()
	p.seq++
	seq := p.seq
	interval := p.interval
	p.cancelFetch = cancel
	gen := p.gen.Load()
	p.mu.Unlock()

	go func() {
		defer cancel()
		start := time.Now()
		endpoints, err := p.fetch(fctx)
		r := fetchResult{
			gen:       gen,
			seq:       seq,
			interval:  interval,
			endpoints: endpoints,
			err:       err,
			duration:  time.Since(start),
		}
		select {
		case results <- r:
		case <-ctx.Done():
		}
	}()
}

func (p *Poller) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Poller) clearCancel() {
	p.mu.Lock()
	p.cancelFetch = nil
	p.mu.Unlock()
}

func (p *Poller) cancelInflight() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen.Add(1)
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
}

func (p *Poller) buildSnapshot(r fetchResult) (*Snapshot, error) {
	snap := &Snapshot{
		Seq:       r.seq,
		FetchedAt: time.Now(),
		Interval:  r.interval,
		Endpoints: make(map[string]EndpointStat, len(r.endpoints)),
	}
	for name, stat := range r.endpoints {
		snap.Endpoints[name] = stat
	}
	if err := snap.Validate(nil); err != nil {
		return nil, err
	}
	return snap, nil
}

// handleSnapshot delivers snap unless gen has been superseded. It reports
// whether the snapshot was delivered.
func (p *Poller) handleSnapshot(gen uint64, snap *Snapshot, duration time.Duration) bool {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if gen != p.gen.Load() {
		p.stats.recordDiscard()
		p.logger.Debug("dropping result of cancelled fetch", "seq", snap.Seq)
		return false
	}

	p.stats.recordPoll(true, len(snap.Endpoints), duration)

	p.mu.Lock()
	p.last = snap
	p.lastErr = nil
	subs := append([]Subscriber(nil), p.subscribers...)
	p.mu.Unlock()

	p.logger.Debug("poll completed",
		"seq", snap.Seq,
		"endpoints", len(snap.Endpoints),
		"duration", duration,
	)

	for _, s := range subs {
		s.OnSnapshot(snap.Clone())
	}
	return true
}

func (p *Poller) handleError(gen uint64, err error, duration time.Duration) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if gen != p.gen.Load() {
		p.stats.recordDiscard()
		return
	}

	p.stats.recordPoll(false, 0, duration)

	p.mu.Lock()
	p.lastErr = err
	subs := append([]Subscriber(nil), p.subscribers...)
	p.mu.Unlock()

	p.logger.Warn("poll failed, keeping last snapshot", "error", err, "duration", duration)

	for _, s := range subs {
		s.OnError(fmt.Errorf("%s: %w", p.name, err))
	}
}
