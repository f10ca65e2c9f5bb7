package match

import (
	"testing"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func testTxn(amount int64, desc string) *model.Transaction {
	return &model.Transaction{
		ID:          "txn-1",
		TenantID:    "acme",
		Amount:      amount,
		Currency:    "EUR",
		Date:        baseDate,
		Description: desc,
		Status:      model.StatusUnmatched,
	}
}

func testCounterpart(id string, amount int64, daysOffset int, desc, provider string) model.Counterpart {
	return model.Counterpart{
		ID:          id,
		TenantID:    "acme",
		Kind:        model.KindExpense,
		Amount:      amount,
		Date:        baseDate.AddDate(0, 0, daysOffset),
		Description: desc,
		Provider:    provider,
		Status:      model.StatusUnmatched,
	}
}

func TestAmountScoreBoundary(t *testing.T) {
	cfg := DefaultConfig()
	scorer := NewScorer(cfg)

	target := int64(100000) // 1000.00, tolerance = 5% = 5000 minor units
	tol := cfg.Tolerance(target)
	require.Equal(t, int64(5000), tol)

	tests := []struct {
		name      string
		candidate int64
		wantZero  bool
		wantFull  bool
	}{
		{"exact match", target, false, true},
		{"at tolerance edge scores exactly zero", target - tol, true, false},
		{"one unit inside the edge scores above zero", target - tol + 1, false, false},
		{"beyond tolerance", target - tol - 1, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.amountScore(target, tt.candidate)
			switch {
			case tt.wantFull:
				assert.Equal(t, 100.0, got)
			case tt.wantZero:
				assert.Equal(t, 0.0, got)
			default:
				assert.Greater(t, got, 0.0)
				assert.Less(t, got, 100.0)
			}
		})
	}
}

func TestAmountScoreAbsoluteFloor(t *testing.T) {
	cfg := DefaultConfig()
	scorer := NewScorer(cfg)

	// 10.00 transaction: 5% would be 50 minor units, the floor of 200 wins.
	require.Equal(t, int64(200), cfg.Tolerance(1000))
	assert.Greater(t, scorer.amountScore(1000, 1100), 0.0)
	assert.Equal(t, 0.0, scorer.amountScore(1000, 1200))
}

func TestDateScoreDecay(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	assert.Equal(t, 100.0, scorer.dateScore(baseDate, baseDate))
	assert.InDelta(t, 100.0*6/7, scorer.dateScore(baseDate, baseDate.AddDate(0, 0, 1)), 0.001)
	assert.Equal(t, 0.0, scorer.dateScore(baseDate, baseDate.AddDate(0, 0, 7)))
	assert.Equal(t, 0.0, scorer.dateScore(baseDate, baseDate.AddDate(0, 0, -12)))
}

func TestScoreScenarioExactMatchNextDay(t *testing.T) {
	// Transaction of -2500.00 against a 2500.00 expense one day later with
	// an identical merchant name must land in the high tier.
	scorer := NewScorer(DefaultConfig())

	txn := testTxn(-250000, "acme catering gmbh")
	cp := testCounterpart("e1", 250000, 1, "acme catering gmbh", "acme catering gmbh")

	candidate := scorer.Score(txn, []model.Counterpart{cp})

	assert.Equal(t, 100.0, candidate.Breakdown.Amount)
	assert.InDelta(t, 100.0*6/7, candidate.Breakdown.Date, 0.001)
	assert.Equal(t, 100.0, candidate.Breakdown.Text)
	assert.Equal(t, model.TierHigh, candidate.Tier)
	assert.Contains(t, candidate.Explanation, "exact amount match")
	assert.Contains(t, candidate.Explanation, "1 day apart")
}

func TestScoreCarriesFullBreakdown(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	txn := testTxn(-100000, "monthly hosting fee")
	cp := testCounterpart("e1", 99000, 3, "hosting february", "hosting gmbh")

	candidate := scorer.Score(txn, []model.Counterpart{cp})

	assert.NotEmpty(t, candidate.ID)
	assert.Equal(t, "txn-1", candidate.TransactionID)
	assert.Len(t, candidate.Counterparts, 1)
	assert.NotEmpty(t, candidate.Explanation)
	assert.Greater(t, candidate.Breakdown.Amount, 0.0)
	assert.Greater(t, candidate.Breakdown.Date, 0.0)
}

func TestScoreGroupAveragesDateAndText(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	txn := testTxn(-500000, "team offsite")
	group := []model.Counterpart{
		testCounterpart("e1", 250000, 0, "team offsite", ""),
		testCounterpart("e2", 250000, 2, "team offsite", ""),
	}

	candidate := scorer.Score(txn, group)

	assert.Equal(t, 100.0, candidate.Breakdown.Amount)
	wantDate := (100.0 + 100.0*5/7) / 2
	assert.InDelta(t, wantDate, candidate.Breakdown.Date, 0.001)
	assert.True(t, candidate.IsSplit())
	assert.Contains(t, candidate.Explanation, "split across 2 records")
}

func TestMerchantBonusIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MerchantPatterns = []string{"netflix"}
	scorer := NewScorer(cfg)

	txn := testTxn(-1599, "netflix subscription")
	cp := testCounterpart("e1", 1599, 0, "netflix subscription", "netflix")

	candidate := scorer.Score(txn, []model.Counterpart{cp})

	// Identical text already scores 100; the bonus must not push past it.
	assert.Equal(t, 100.0, candidate.Breakdown.Text)
	assert.LessOrEqual(t, candidate.Confidence, 100.0)
}

func TestMerchantBonusLiftsPartialText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MerchantPatterns = []string{"spotify"}

	base := NewScorer(DefaultConfig())
	boosted := NewScorer(cfg)

	txn := testTxn(-999, "spotify p0992 stockholm")
	cp := testCounterpart("e1", 999, 0, "music subscription spotify", "spotify ab")

	plain := base.Score(txn, []model.Counterpart{cp})
	withBonus := boosted.Score(txn, []model.Counterpart{cp})

	assert.Greater(t, withBonus.Breakdown.Text, plain.Breakdown.Text)
	assert.LessOrEqual(t, withBonus.Breakdown.Text-plain.Breakdown.Text, merchantBonus)
}

func TestTierThresholds(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, model.TierHigh, cfg.TierFor(85))
	assert.Equal(t, model.TierHigh, cfg.TierFor(99.9))
	assert.Equal(t, model.TierMedium, cfg.TierFor(84.9))
	assert.Equal(t, model.TierMedium, cfg.TierFor(60))
	assert.Equal(t, model.TierLow, cfg.TierFor(59.9))
	assert.Equal(t, model.TierLow, cfg.TierFor(0))
}
