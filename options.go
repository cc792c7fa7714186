package opsboard

import (
	"io"
	"log/slog"
)

// Option configures a Board.
type Option func(*Board)

// WithConfigFile sets the path to a TOML config file.
func WithConfigFile(path string) Option {
	return func(b *Board) {
		b.cfgPath = path
	}
}

// WithConfig provides a Config directly instead of loading from file.
func WithConfig(cfg *Config) Option {
	return func(b *Board) {
		b.cfg = cfg
	}
}

// WithEcho enables echo mode (samples to stdout as line protocol).
func WithEcho(enabled bool) Option {
	return func(b *Board) {
		b.echoMode = enabled
	}
}

// WithEchoWriter enables echo mode writing to w.
func WithEchoWriter(w io.Writer) Option {
	return func(b *Board) {
		b.echoMode = true
		b.echoWriter = w
	}
}

// WithRunOnce performs a single fetch per view and returns.
func WithRunOnce(enabled bool) Option {
	return func(b *Board) {
		b.runOnce = enabled
	}
}

// WithLogger provides a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		b.logger = logger
	}
}

// WithLevelVar lets a reload change the level of a logger given to WithLogger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(b *Board) {
		b.levelVar = lv
	}
}

// WithSink adds an export sink.
func WithSink(s Sink) Option {
	return func(b *Board) {
		b.sinks = append(b.sinks, s)
	}
}

// WithReloadFunc provides a custom config reload function.
// The function receives the config file path and returns a new Config.
func WithReloadFunc(fn func(path string) (*Config, error)) Option {
	return func(b *Board) {
		b.reloadFn = fn
	}
}
