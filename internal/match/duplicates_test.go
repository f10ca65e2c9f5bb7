package match

import (
	"testing"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExpense(id string, amount int64, daysOffset int, desc, provider string) model.Expense {
	return model.Expense{
		ID:          id,
		TenantID:    "acme",
		Amount:      amount,
		Date:        baseDate.AddDate(0, 0, daysOffset),
		Description: desc,
		Provider:    provider,
		Status:      model.StatusUnmatched,
	}
}

func TestScanSurfacesNearIdenticalExpense(t *testing.T) {
	// Two expenses with identical amount and date and near-identical
	// descriptions: the second must surface as a high-confidence duplicate
	// of the first. Nothing is merged; the hit is only reported.
	detector := NewDetector(DefaultConfig())

	existing := testExpense("e1", 4500, 0, "lunch with client at bistro", "bistro central")
	incoming := testExpense("e2", 4500, 0, "lunch with client at the bistro", "bistro central")

	hits := detector.Scan(&incoming, []model.Expense{existing})
	require.Len(t, hits, 1)
	assert.Equal(t, "e1", hits[0].OfExpenseID)
	assert.Equal(t, model.TierHigh, hits[0].Tier)
	assert.Equal(t, 100.0, hits[0].Breakdown.Amount)
	assert.Equal(t, 100.0, hits[0].Provider)
	assert.Contains(t, hits[0].Explanation, "identical amount")
}

func TestScanIgnoresOldAndForeignExpenses(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	incoming := testExpense("new", 10000, 0, "office rent", "landlord co")
	pool := []model.Expense{
		testExpense("too-old", 10000, -40, "office rent", "landlord co"),
		{
			ID: "other-tenant", TenantID: "globex", Amount: 10000,
			Date: baseDate, Description: "office rent", Provider: "landlord co",
			Status: model.StatusUnmatched,
		},
		{
			ID: "already-matched", TenantID: "acme", Amount: 10000,
			Date: baseDate, Description: "office rent", Provider: "landlord co",
			Status: model.StatusMatched,
		},
	}

	assert.Empty(t, detector.Scan(&incoming, pool))
}

func TestScanRanksByConfidence(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	incoming := testExpense("new", 20000, 0, "monthly parking pass", "city parking")
	pool := []model.Expense{
		testExpense("weak", 20100, 5, "parking", "garage west"),
		testExpense("strong", 20000, 0, "monthly parking pass", "city parking"),
	}

	hits := detector.Scan(&incoming, pool)
	require.NotEmpty(t, hits)
	assert.Equal(t, "strong", hits[0].OfExpenseID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Confidence, hits[i].Confidence)
	}
}

func TestScanSkipsSelf(t *testing.T) {
	detector := NewDetector(DefaultConfig())
	exp := testExpense("same", 5000, 0, "coffee", "cafe")

	assert.Empty(t, detector.Scan(&exp, []model.Expense{exp}))
}

func TestScanSubmittedWithinHour(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	first := testExpense("first", 7800, 0, "taxi airport to office", "city cabs")
	first.CreatedAt = baseDate.Add(9 * time.Hour)
	second := testExpense("second", 7800, 0, "taxi airport to office", "city cabs")
	second.CreatedAt = baseDate.Add(9*time.Hour + 30*time.Minute)

	hits := detector.Scan(&second, []model.Expense{first})
	require.Len(t, hits, 1)
	assert.Equal(t, model.TierHigh, hits[0].Tier)
}
