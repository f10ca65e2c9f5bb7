// Package match implements the matching pipeline: candidate generation,
// multi-factor confidence scoring, bounded combination search, and duplicate
// detection.
package match

import (
	"fmt"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/spf13/viper"
)

// Config holds every tunable of the matching pipeline. Thresholds and
// tolerances live here so changing them is a single-point configuration
// change, never a per-call-site edit.
type Config struct {
	MerchantPatterns []string

	// Candidate generation.
	MaxCandidates  int
	DateWindowDays int

	// Amount tolerance: relative with an absolute floor, whichever is larger.
	AmountTolerancePct   float64
	AmountToleranceMinor int64

	// Combination search.
	MaxGroupSize int
	MaxBuckets   int

	// Allocation invariant epsilon.
	EpsilonPct   float64
	EpsilonMinor int64

	// Confidence tier thresholds.
	HighThreshold   float64
	MediumThreshold float64

	// Duplicate detection.
	DuplicateWindowDays int
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:        50,
		DateWindowDays:       7,
		AmountTolerancePct:   0.05,
		AmountToleranceMinor: 200,
		MaxGroupSize:         5,
		MaxBuckets:           2048,
		EpsilonPct:           0.01,
		EpsilonMinor:         200,
		HighThreshold:        85,
		MediumThreshold:      60,
		DuplicateWindowDays:  30,
	}
}

// RegisterDefaults seeds viper with the default matching keys so a partial
// config file only overrides what it names.
func RegisterDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("matching.max_candidates", d.MaxCandidates)
	v.SetDefault("matching.date_window_days", d.DateWindowDays)
	v.SetDefault("matching.amount_tolerance_pct", d.AmountTolerancePct)
	v.SetDefault("matching.amount_tolerance_minor", d.AmountToleranceMinor)
	v.SetDefault("matching.max_group_size", d.MaxGroupSize)
	v.SetDefault("matching.max_buckets", d.MaxBuckets)
	v.SetDefault("matching.epsilon_pct", d.EpsilonPct)
	v.SetDefault("matching.epsilon_minor", d.EpsilonMinor)
	v.SetDefault("matching.high_threshold", d.HighThreshold)
	v.SetDefault("matching.medium_threshold", d.MediumThreshold)
	v.SetDefault("matching.duplicate_window_days", d.DuplicateWindowDays)
	v.SetDefault("matching.merchant_patterns", []string{})
}

// FromViper builds a Config from the matching.* key space.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		MaxCandidates:        v.GetInt("matching.max_candidates"),
		DateWindowDays:       v.GetInt("matching.date_window_days"),
		AmountTolerancePct:   v.GetFloat64("matching.amount_tolerance_pct"),
		AmountToleranceMinor: v.GetInt64("matching.amount_tolerance_minor"),
		MaxGroupSize:         v.GetInt("matching.max_group_size"),
		MaxBuckets:           v.GetInt("matching.max_buckets"),
		EpsilonPct:           v.GetFloat64("matching.epsilon_pct"),
		EpsilonMinor:         v.GetInt64("matching.epsilon_minor"),
		HighThreshold:        v.GetFloat64("matching.high_threshold"),
		MediumThreshold:      v.GetFloat64("matching.medium_threshold"),
		DuplicateWindowDays:  v.GetInt("matching.duplicate_window_days"),
		MerchantPatterns:     v.GetStringSlice("matching.merchant_patterns"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects an unusable configuration before any batch work starts.
func (c Config) Validate() error {
	if c.MaxCandidates <= 0 {
		return &common.ToleranceConfigError{Field: "max_candidates", Value: fmt.Sprint(c.MaxCandidates)}
	}
	if c.DateWindowDays <= 0 {
		return &common.ToleranceConfigError{Field: "date_window_days", Value: fmt.Sprint(c.DateWindowDays)}
	}
	if c.AmountTolerancePct < 0 || c.AmountTolerancePct > 1 {
		return &common.ToleranceConfigError{Field: "amount_tolerance_pct", Value: fmt.Sprint(c.AmountTolerancePct)}
	}
	if c.AmountToleranceMinor < 0 {
		return &common.ToleranceConfigError{Field: "amount_tolerance_minor", Value: fmt.Sprint(c.AmountToleranceMinor)}
	}
	if c.MaxGroupSize < 2 {
		return &common.ToleranceConfigError{Field: "max_group_size", Value: fmt.Sprint(c.MaxGroupSize)}
	}
	if c.MaxBuckets <= 0 {
		return &common.ToleranceConfigError{Field: "max_buckets", Value: fmt.Sprint(c.MaxBuckets)}
	}
	if c.EpsilonPct < 0 || c.EpsilonPct > 1 {
		return &common.ToleranceConfigError{Field: "epsilon_pct", Value: fmt.Sprint(c.EpsilonPct)}
	}
	if c.EpsilonMinor < 0 {
		return &common.ToleranceConfigError{Field: "epsilon_minor", Value: fmt.Sprint(c.EpsilonMinor)}
	}
	if c.HighThreshold <= c.MediumThreshold {
		return &common.ToleranceConfigError{Field: "high_threshold", Value: fmt.Sprint(c.HighThreshold)}
	}
	if c.MediumThreshold <= 0 {
		return &common.ToleranceConfigError{Field: "medium_threshold", Value: fmt.Sprint(c.MediumThreshold)}
	}
	if c.DuplicateWindowDays <= 0 {
		return &common.ToleranceConfigError{Field: "duplicate_window_days", Value: fmt.Sprint(c.DuplicateWindowDays)}
	}
	return nil
}

// Tolerance returns the amount tolerance in minor units for a target
// magnitude: the relative tolerance with the absolute floor.
func (c Config) Tolerance(amountMinor int64) int64 {
	if amountMinor < 0 {
		amountMinor = -amountMinor
	}
	rel := int64(c.AmountTolerancePct * float64(amountMinor))
	if rel < c.AmountToleranceMinor {
		return c.AmountToleranceMinor
	}
	return rel
}

// Epsilon returns the allocation-sum epsilon for a transaction magnitude.
func (c Config) Epsilon(amountMinor int64) int64 {
	if amountMinor < 0 {
		amountMinor = -amountMinor
	}
	rel := int64(c.EpsilonPct * float64(amountMinor))
	if rel < c.EpsilonMinor {
		return c.EpsilonMinor
	}
	return rel
}
