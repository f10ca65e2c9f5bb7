package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "acme office supplies", "acme office supplies", 1, 1},
		{"empty side", "", "acme", 0, 0},
		{"both empty", "", "", 0, 0},
		{"reordered tokens", "acme gmbh berlin", "berlin acme gmbh", 0.99, 1},
		{"partial overlap", "monthly hosting fee", "hosting february", 0.2, 0.8},
		{"unrelated", "taxi ride downtown", "quarterly tax filing", 0, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestSimilarityHandlesOCRNoise(t *testing.T) {
	// Single-character OCR noise should still score clearly above unrelated
	// text thanks to the edit-distance path.
	noisy := Similarity("starbucks coffee 0042", "starbvcks coffee 0042")
	unrelated := Similarity("starbucks coffee 0042", "annual insurance premium")
	assert.Greater(t, noisy, 0.8)
	assert.Greater(t, noisy, unrelated)
}

func TestTokenOverlapIgnoresNoiseTokens(t *testing.T) {
	// Single-character tokens carry no signal.
	got := tokenOverlap("a b transfer", "x y transfer")
	assert.Equal(t, 1.0, got)
}

func TestMerchantPatternHit(t *testing.T) {
	patterns := []string{"netflix", " Spotify "}

	assert.True(t, merchantPatternHit(patterns, "netflix march", "netflix intl"))
	assert.True(t, merchantPatternHit(patterns, "spotify ab", "spotify premium"))
	assert.False(t, merchantPatternHit(patterns, "netflix march", "video service"))
	assert.False(t, merchantPatternHit(nil, "netflix", "netflix"))
}
