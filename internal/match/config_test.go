package match

import (
	"errors"
	"testing"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadTolerances(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative absolute tolerance", func(c *Config) { c.AmountToleranceMinor = -1 }, "amount_tolerance_minor"},
		{"relative tolerance above one", func(c *Config) { c.AmountTolerancePct = 1.5 }, "amount_tolerance_pct"},
		{"zero date window", func(c *Config) { c.DateWindowDays = 0 }, "date_window_days"},
		{"group size below two", func(c *Config) { c.MaxGroupSize = 1 }, "max_group_size"},
		{"zero candidates", func(c *Config) { c.MaxCandidates = 0 }, "max_candidates"},
		{"inverted thresholds", func(c *Config) { c.HighThreshold = 50 }, "high_threshold"},
		{"negative epsilon", func(c *Config) { c.EpsilonMinor = -5 }, "epsilon_minor"},
		{"zero duplicate window", func(c *Config) { c.DuplicateWindowDays = 0 }, "duplicate_window_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *common.ToleranceConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestToleranceUsesFloorForSmallAmounts(t *testing.T) {
	cfg := DefaultConfig()

	// 5% of 10.00 is below the 2-unit floor.
	assert.Equal(t, int64(200), cfg.Tolerance(1000))
	// 5% of 1000.00 dominates the floor.
	assert.Equal(t, int64(5000), cfg.Tolerance(100000))
	// Sign does not matter.
	assert.Equal(t, int64(5000), cfg.Tolerance(-100000))
}

func TestEpsilon(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(200), cfg.Epsilon(1000))
	assert.Equal(t, int64(1000), cfg.Epsilon(100000))
}

func TestFromViperRoundTrip(t *testing.T) {
	v := viper.New()
	RegisterDefaults(v)
	v.Set("matching.max_group_size", 4)
	v.Set("matching.merchant_patterns", []string{"netflix"})

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxGroupSize)
	assert.Equal(t, 50, cfg.MaxCandidates)
	assert.Equal(t, []string{"netflix"}, cfg.MerchantPatterns)
}

func TestFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	RegisterDefaults(v)
	v.Set("matching.date_window_days", -3)

	_, err := FromViper(v)
	require.Error(t, err)

	var cfgErr *common.ToleranceConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
