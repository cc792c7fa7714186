package opsboard

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPollInterval is the refresh cadence used when none is configured.
const DefaultPollInterval = 5 * time.Second

// Config represents the board configuration.
type Config struct {
	Global     GlobalConfig     `toml:"global"`
	Poller     PollerSettings   `toml:"poller"`
	Latency    Thresholds       `toml:"latency"`
	Source     SourceConfig     `toml:"source"`
	Views      []ViewConfig     `toml:"views"`
	InfluxDB   InfluxDBConfig   `toml:"influxdb"`
	Prometheus PrometheusConfig `toml:"prometheus"`
	HTTP       HTTPConfig       `toml:"http"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel      string   `toml:"log_level"`
	LogFormat     string   `toml:"log_format"`
	BatchSize     int      `toml:"batch_size"`
	RetryAttempts int      `toml:"retry_attempts"`
	RetryDelay    Duration `toml:"retry_delay"`
}

// PollerSettings controls the refresh cadence shared by every view.
type PollerSettings struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Timeout  Duration `toml:"timeout"`
}

// Effective returns the interval to poll at, Disabled when polling is off.
func (p PollerSettings) Effective() time.Duration {
	if !p.Enabled {
		return Disabled
	}
	return p.Interval.Duration
}

// SourceConfig points at the metrics backend.
type SourceConfig struct {
	URL            string   `toml:"url"`
	Timeout        Duration `toml:"timeout"`
	PredictTimeout Duration `toml:"predict_timeout"`
	UserAgent      string   `toml:"user_agent"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Org     string `toml:"org"`
	Bucket  string `toml:"bucket"`
}

// PrometheusConfig contains Prometheus exporter settings.
type PrometheusConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Path    string `toml:"path"`
}

// HTTPConfig contains the view API listener settings.
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Duration is a wrapper around time.Duration that supports TOML parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultViews returns the overview, kafka and metrics pages.
func DefaultViews() []ViewConfig {
	return []ViewConfig{
		{Name: "overview", Endpoints: []string{"classifier"}, Capacity: OverviewHistorySize},
		{Name: "kafka", Endpoints: []string{"classifier"}, Capacity: KafkaHistorySize},
		{Name: "metrics", Endpoints: []string{"classifier", "llm"}, Capacity: MetricsHistorySize},
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:      "info",
			LogFormat:     "text",
			BatchSize:     50,
			RetryAttempts: 3,
			RetryDelay:    Duration{1 * time.Second},
		},
		Poller: PollerSettings{
			Enabled:  true,
			Interval: Duration{DefaultPollInterval},
			Timeout:  Duration{4 * time.Second},
		},
		Latency: DefaultThresholds(),
		Source: SourceConfig{
			URL:            "http://localhost:8000",
			Timeout:        Duration{4 * time.Second},
			PredictTimeout: Duration{30 * time.Second},
			UserAgent:      "opsboard",
		},
		InfluxDB: InfluxDBConfig{
			Enabled: false,
		},
		Prometheus: PrometheusConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    ":8080",
		},
	}
}

// ViewConfigs returns the configured views, or the defaults when none are set.
func (c *Config) ViewConfigs() []ViewConfig {
	if len(c.Views) == 0 {
		return DefaultViews()
	}
	return c.Views
}

// LoadConfig reads and parses a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := parseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromString parses configuration from a TOML string.
func LoadConfigFromString(data string) (*Config, error) {
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parseConfig(data string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, err
	}
	// Capacity is optional per view; fall back to the history size of the
	// page the view is named after.
	if md.IsDefined("views") {
		for i := range cfg.Views {
			if cfg.Views[i].Capacity == 0 {
				cfg.Views[i].Capacity = defaultCapacity(cfg.Views[i].Name)
			}
		}
	}
	return cfg, nil
}

func defaultCapacity(view string) int {
	switch view {
	case "overview":
		return OverviewHistorySize
	case "kafka":
		return KafkaHistorySize
	default:
		return MetricsHistorySize
	}
}
