package opsboard

import (
	"fmt"
	"math"
)

// Tier is a latency severity class.
type Tier string

const (
	TierNeutral  Tier = "neutral"
	TierGood     Tier = "good"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

// Severity orders tiers for comparison. Neutral sorts below good.
func (t Tier) Severity() int {
	switch t {
	case TierGood:
		return 1
	case TierWarning:
		return 2
	case TierCritical:
		return 3
	default:
		return 0
	}
}

// Unknown is the latency value for "not reported".
var Unknown = math.NaN()

// Default latency cutoffs in milliseconds.
const (
	DefaultWarningMs  = 200.0
	DefaultCriticalMs = 500.0
)

// Thresholds are the two ascending latency cutoffs in milliseconds.
type Thresholds struct {
	WarningMs  float64 `toml:"warning_ms" json:"warning_ms"`
	CriticalMs float64 `toml:"critical_ms" json:"critical_ms"`
}

// DefaultThresholds returns the default cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningMs:  DefaultWarningMs,
		CriticalMs: DefaultCriticalMs,
	}
}

// Validate checks that 0 < warning < critical.
func (t Thresholds) Validate() error {
	if !(t.WarningMs > 0) {
		return fmt.Errorf("warning cutoff must be positive, got %v", t.WarningMs)
	}
	if !(t.CriticalMs > t.WarningMs) || math.IsInf(t.CriticalMs, 0) {
		return fmt.Errorf("critical cutoff must be finite and above warning (%v), got %v", t.WarningMs, t.CriticalMs)
	}
	return nil
}

// Classify maps a latency to a tier:
//
//	ms <  warning             good
//	warning <= ms < critical  warning
//	ms >= critical            critical
//
// NaN and negative values are neutral.
func (t Thresholds) Classify(ms float64) Tier {
	switch {
	case math.IsNaN(ms) || ms < 0:
		return TierNeutral
	case ms < t.WarningMs:
		return TierGood
	case ms < t.CriticalMs:
		return TierWarning
	default:
		return TierCritical
	}
}

// ClassifyStat classifies the average latency of stat; nil is neutral.
func (t Thresholds) ClassifyStat(stat *EndpointStat) Tier {
	if stat == nil {
		return TierNeutral
	}
	return t.Classify(stat.AvgLatencyMs)
}
