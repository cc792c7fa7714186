package opsboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Board is the core runtime: one poller per view, snapshots folded into
// views, derived samples exported through the pipeline, signals and reload.
type Board struct {
	name       string
	fetch      FetchFunc
	pipeline   *Pipeline
	signals    *SignalHandler
	logger     *slog.Logger
	levelVar   *slog.LevelVar
	cfg        *Config
	cfgPath    string
	echoMode   bool
	echoWriter io.Writer
	runOnce    bool
	reloadFn   func(string) (*Config, error)
	sinks      []Sink

	order   []string
	views   map[string]*View
	pollers map[string]*Poller

	mu         sync.RWMutex
	interval   time.Duration
	enabled    bool
	thresholds Thresholds
}

// New creates a Board with the given name, fetch function and options.
func New(name string, fetch FetchFunc, opts ...Option) (*Board, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}

	b := &Board{
		name:  name,
		fetch: fetch,
	}

	for _, opt := range opts {
		opt(b)
	}

	// Load config from file if path given and no config provided directly.
	if b.cfg == nil && b.cfgPath != "" {
		cfg, err := LoadConfig(b.cfgPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		b.cfg = cfg
	}

	if b.cfg == nil {
		b.cfg = DefaultConfig()
	}

	if b.logger == nil {
		b.logger, b.levelVar = NewLoggerWithFormat(os.Stderr, b.cfg.Global.LogLevel, b.cfg.Global.LogFormat)
	}

	b.interval = b.cfg.Poller.Interval.Duration
	if b.interval <= 0 {
		b.interval = DefaultPollInterval
	}
	b.enabled = b.cfg.Poller.Enabled
	b.thresholds = b.cfg.Latency

	b.pipeline = NewPipeline(PipelineConfig{
		BatchSize:     b.cfg.Global.BatchSize,
		FlushInterval: b.interval,
		RetryAttempts: b.cfg.Global.RetryAttempts,
		RetryDelay:    b.cfg.Global.RetryDelay.Duration,
		Logger:        b.logger,
	})

	initial := b.effectiveLocked()
	b.views = make(map[string]*View)
	b.pollers = make(map[string]*Poller)
	for _, vc := range b.cfg.ViewConfigs() {
		if _, dup := b.views[vc.Name]; dup {
			return nil, fmt.Errorf("duplicate view %q", vc.Name)
		}
		view := NewView(vc, b.thresholds)
		poller := NewPoller(vc.Name, fetch, PollerConfig{
			Interval: initial,
			Timeout:  b.cfg.Poller.Timeout.Duration,
			Logger:   b.logger,
		})
		poller.Subscribe(&binding{board: b, view: view, poller: poller})

		b.order = append(b.order, vc.Name)
		b.views[vc.Name] = view
		b.pollers[vc.Name] = poller
	}

	return b, nil
}

// Run starts the board and blocks until shutdown.
func (b *Board) Run(ctx context.Context) error {
	b.logger.Info("starting board",
		"name", b.name,
		"views", b.order,
		"interval", b.interval,
		"enabled", b.Enabled(),
	)

	b.addSinks()

	if err := b.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.pipeline.Stop(stopCtx); err != nil {
			b.logger.Error("error stopping pipeline", "error", err)
		}
	}()

	if b.runOnce {
		return b.pollOnce(ctx)
	}

	b.signals = NewSignalHandler(b.logger)
	ctx = b.signals.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range b.order {
		p := b.pollers[name]
		g.Go(func() error {
			return p.Run(gctx)
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-b.signals.Reload():
				b.handleReload()
			case <-b.signals.Toggle():
				b.SetEnabled(!b.Enabled())
			}
		}
	})

	err := g.Wait()
	b.logger.Info("shutdown complete")
	return err
}

// pollOnce fetches every view concurrently. One failing view does not cancel
// the others.
func (b *Board) pollOnce(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range b.order {
		p := b.pollers[name]
		g.Go(func() error {
			return p.Poll(ctx)
		})
	}
	return g.Wait()
}

func (b *Board) addSinks() {
	for _, s := range b.sinks {
		b.pipeline.AddSink(s)
	}

	if b.echoMode {
		b.pipeline.AddSink(NewEcho(b.echoWriter, b.logger))
	}

	if b.pipeline.SinkCount() == 0 {
		b.logger.Info("no sinks configured, derived samples are not exported")
	}
}

// Name returns the board name.
func (b *Board) Name() string {
	return b.name
}

// Views returns the view names in configured order.
func (b *Board) Views() []string {
	return slices.Clone(b.order)
}

// View returns the named view.
func (b *Board) View(name string) (*View, bool) {
	v, ok := b.views[name]
	return v, ok
}

// Stats returns polling statistics summed across every view.
func (b *Board) Stats() PollStats {
	var total PollStats
	for _, name := range b.order {
		total = total.Add(b.pollers[name].Stats())
	}
	return total
}

// ViewStats returns the polling statistics of one view.
func (b *Board) ViewStats(name string) (PollStats, bool) {
	p, ok := b.pollers[name]
	if !ok {
		return PollStats{}, false
	}
	return p.Stats(), true
}

// Interval returns the configured refresh cadence, whether or not polling
// is currently enabled.
func (b *Board) Interval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

// Enabled reports whether auto-refresh is on.
func (b *Board) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// SetInterval changes the cadence of every view. Disabled (zero) turns
// auto-refresh off and keeps the previous cadence for re-enabling.
func (b *Board) SetInterval(d time.Duration) {
	b.mu.Lock()
	if d <= 0 {
		b.enabled = false
	} else {
		b.interval = d
		b.enabled = true
	}
	effective := b.effectiveLocked()
	b.mu.Unlock()

	b.logger.Info("poll interval changed", "interval", effective)
	b.applyInterval(effective)
}

// SetEnabled turns auto-refresh on or off.
func (b *Board) SetEnabled(enabled bool) {
	b.mu.Lock()
	if b.enabled == enabled {
		b.mu.Unlock()
		return
	}
	b.enabled = enabled
	effective := b.effectiveLocked()
	b.mu.Unlock()

	b.logger.Info("auto-refresh toggled", "enabled", enabled)
	b.applyInterval(effective)
}

func (b *Board) effectiveLocked() time.Duration {
	if !b.enabled {
		return Disabled
	}
	return b.interval
}

func (b *Board) applyInterval(d time.Duration) {
	for _, name := range b.order {
		b.pollers[name].SetInterval(d)
	}
}

// Thresholds returns the latency cutoffs in effect.
func (b *Board) Thresholds() Thresholds {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.thresholds
}

// SetThresholds replaces the latency cutoffs of every view.
func (b *Board) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.thresholds = t
	b.mu.Unlock()

	for _, v := range b.views {
		v.SetThresholds(t)
	}
	return nil
}

func (b *Board) handleReload() {
	b.logger.Info("reloading configuration")

	var newCfg *Config
	var err error

	if b.reloadFn != nil {
		newCfg, err = b.reloadFn(b.cfgPath)
	} else if b.cfgPath != "" {
		newCfg, err = LoadConfig(b.cfgPath)
	} else {
		b.logger.Warn("no config path or reload function, ignoring reload signal")
		return
	}

	if err != nil {
		b.logger.Error("config reload failed, keeping current config", "error", err)
		return
	}

	b.applyConfig(newCfg)
}

func (b *Board) applyConfig(newCfg *Config) {
	old := b.cfg

	if newCfg.Poller.Interval.Duration != old.Poller.Interval.Duration ||
		newCfg.Poller.Enabled != old.Poller.Enabled {
		b.mu.Lock()
		if newCfg.Poller.Interval.Duration > 0 {
			b.interval = newCfg.Poller.Interval.Duration
		}
		b.enabled = newCfg.Poller.Enabled
		effective := b.effectiveLocked()
		b.mu.Unlock()

		b.applyInterval(effective)
		b.logger.Info("updated poller", "interval", newCfg.Poller.Interval.Duration, "enabled", newCfg.Poller.Enabled)
	}

	if newCfg.Latency != old.Latency {
		if err := b.SetThresholds(newCfg.Latency); err != nil {
			b.logger.Error("ignoring invalid latency thresholds", "error", err)
		} else {
			b.logger.Info("updated latency thresholds",
				"warning_ms", newCfg.Latency.WarningMs,
				"critical_ms", newCfg.Latency.CriticalMs,
			)
		}
	}

	if b.levelVar != nil && newCfg.Global.LogLevel != old.Global.LogLevel {
		b.levelVar.Set(ParseLogLevel(newCfg.Global.LogLevel))
		b.logger.Info("updated log level", "level", newCfg.Global.LogLevel)
	}

	if !slices.EqualFunc(newCfg.ViewConfigs(), old.ViewConfigs(), sameView) {
		b.logger.Warn("view changes require a restart, keeping current views")
	}

	b.cfg = newCfg
}

func sameView(a, b ViewConfig) bool {
	return a.Name == b.Name && a.Capacity == b.Capacity && slices.Equal(a.Endpoints, b.Endpoints)
}

// binding feeds one poller's output into its view and the export pipeline.
type binding struct {
	board  *Board
	view   *View
	poller *Poller
}

func (s *binding) OnSnapshot(snap *Snapshot) {
	updates, err := s.view.Apply(snap)
	if err != nil {
		s.board.logger.Warn("snapshot rejected", "view", s.view.Name(), "error", err)
		s.exportStats()
		return
	}

	samples := make([]*Sample, 0, len(updates)+1)
	for _, u := range updates {
		samples = append(samples, SampleFromUpdate(s.view.Name(), u))
	}
	samples = append(samples, SampleFromStats(s.view.Name(), s.poller.Stats()))
	s.board.pipeline.Push(samples...)
}

func (s *binding) OnError(err error) {
	s.view.Fail(err)
	s.exportStats()
}

func (s *binding) exportStats() {
	s.board.pipeline.Push(SampleFromStats(s.view.Name(), s.poller.Stats()))
}
