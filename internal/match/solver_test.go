package match

import (
	"fmt"
	"testing"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSolver(cfg Config) *Solver {
	return NewSolver(cfg, NewScorer(cfg))
}

func TestSolveThreeWaySplit(t *testing.T) {
	// Transaction of -5000.00 against expenses of 2500.00, 1500.00, and
	// 1000.00 all dated within three days: exactly this split is proposed.
	solver := newTestSolver(DefaultConfig())

	txn := testTxn(-500000, "trade fair expenses")
	candidates := []model.Counterpart{
		testCounterpart("e1", 250000, 1, "trade fair expenses", ""),
		testCounterpart("e2", 150000, 2, "trade fair expenses", ""),
		testCounterpart("e3", 100000, 3, "trade fair expenses", ""),
	}

	got := solver.Solve(txn, candidates)
	require.NotNil(t, got)
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, got.CounterpartIDs())
	assert.Equal(t, 100.0, got.Breakdown.Amount)
	assert.Equal(t, model.TierHigh, got.Tier)
	assert.True(t, got.IsSplit())
}

func TestSolvePrefersHigherScoringSubset(t *testing.T) {
	solver := newTestSolver(DefaultConfig())

	// Two disjoint subsets both sum to the target; the one with matching
	// descriptions and closer dates must win, and only one is proposed.
	txn := testTxn(-200000, "quarterly software licenses")
	candidates := []model.Counterpart{
		testCounterpart("good-a", 120000, 0, "quarterly software licenses", ""),
		testCounterpart("good-b", 80000, 0, "quarterly software licenses", ""),
		testCounterpart("poor-a", 110000, 6, "warehouse pallets", ""),
		testCounterpart("poor-b", 90000, 6, "forklift rental", ""),
	}

	got := solver.Solve(txn, candidates)
	require.NotNil(t, got)
	assert.ElementsMatch(t, []string{"good-a", "good-b"}, got.CounterpartIDs())
}

func TestSolveRespectsGroupSizeBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGroupSize = 3
	solver := newTestSolver(cfg)

	// Only a 4-way combination reaches the target; with K=3 nothing may be
	// proposed, and no proposal ever exceeds K members.
	txn := testTxn(-400000, "split four ways")
	candidates := []model.Counterpart{
		testCounterpart("e1", 100000, 0, "split four ways", ""),
		testCounterpart("e2", 100000, 1, "split four ways", ""),
		testCounterpart("e3", 100000, 2, "split four ways", ""),
		testCounterpart("e4", 100000, 3, "split four ways", ""),
	}

	got := solver.Solve(txn, candidates)
	assert.Nil(t, got)
}

func TestSolveNoQualifyingSubset(t *testing.T) {
	solver := newTestSolver(DefaultConfig())

	txn := testTxn(-100000, "nothing fits")
	candidates := []model.Counterpart{
		testCounterpart("e1", 30000, 0, "a", ""),
		testCounterpart("e2", 20000, 0, "b", ""),
	}

	assert.Nil(t, solver.Solve(txn, candidates))
}

func TestSolveWithinToleranceSum(t *testing.T) {
	solver := newTestSolver(DefaultConfig())

	// Sum lands 100 minor units off the target, inside the 5% tolerance.
	txn := testTxn(-100000, "close enough")
	candidates := []model.Counterpart{
		testCounterpart("e1", 60000, 0, "close enough", ""),
		testCounterpart("e2", 39900, 0, "close enough", ""),
	}

	got := solver.Solve(txn, candidates)
	require.NotNil(t, got)
	assert.Greater(t, got.Breakdown.Amount, 0.0)
	assert.Less(t, got.Breakdown.Amount, 100.0)
}

func TestSolveBoundedOnLargePool(t *testing.T) {
	cfg := DefaultConfig()
	solver := newTestSolver(cfg)

	// 200 candidates would be 2^200 subsets under naive enumeration. The
	// discretized DP has to finish well inside a second.
	txn := testTxn(-1000000, "year end batch")
	candidates := make([]model.Counterpart, 0, 200)
	for i := 0; i < 200; i++ {
		amount := int64(3000 + 997*i%90000)
		candidates = append(candidates, testCounterpart(fmt.Sprintf("e%03d", i), amount, i%7, "year end batch", ""))
	}

	start := time.Now()
	got := solver.Solve(txn, candidates)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	if got != nil {
		assert.LessOrEqual(t, len(got.Counterparts), cfg.MaxGroupSize)
	}
}

func TestSolveNeedsAtLeastTwoItems(t *testing.T) {
	solver := newTestSolver(DefaultConfig())

	txn := testTxn(-100000, "solo")
	assert.Nil(t, solver.Solve(txn, []model.Counterpart{
		testCounterpart("e1", 100000, 0, "solo", ""),
	}))
}
