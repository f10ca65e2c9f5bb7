package match

import (
	"fmt"
	"testing"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFilters(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	txn := testTxn(-250000, "supplies")

	pool := []model.Counterpart{
		testCounterpart("within-tolerance", 249900, 0, "supplies", ""),
		testCounterpart("exact", 250000, 1, "supplies", ""),
		testCounterpart("split-component", 100000, 2, "supplies part", ""),
		testCounterpart("too-large", 300000, 0, "supplies", ""),
		testCounterpart("too-old", 250000, 9, "supplies", ""),
		{
			ID: "wrong-tenant", TenantID: "other", Kind: model.KindExpense,
			Amount: 250000, Date: baseDate, Status: model.StatusUnmatched,
		},
		{
			ID: "already-matched", TenantID: "acme", Kind: model.KindExpense,
			Amount: 250000, Date: baseDate, Status: model.StatusMatched,
		},
	}

	got := g.Generate(txn, pool)

	ids := make([]string, len(got))
	for i, cp := range got {
		ids[i] = cp.ID
	}
	// Ordered by absolute amount difference, then date proximity.
	assert.Equal(t, []string{"exact", "within-tolerance", "split-component"}, ids)
}

func TestGenerateOrdersByAmountThenDate(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	txn := testTxn(-100000, "x")

	pool := []model.Counterpart{
		testCounterpart("far-date", 100000, 5, "x", ""),
		testCounterpart("near-date", 100000, 1, "x", ""),
		testCounterpart("off-amount", 99500, 0, "x", ""),
	}

	got := g.Generate(txn, pool)
	require.Len(t, got, 3)
	assert.Equal(t, "near-date", got[0].ID)
	assert.Equal(t, "far-date", got[1].ID)
	assert.Equal(t, "off-amount", got[2].ID)
}

func TestGenerateCapsPoolSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 10
	g := NewGenerator(cfg)

	txn := testTxn(-500000, "bulk")
	pool := make([]model.Counterpart, 0, 200)
	for i := 0; i < 200; i++ {
		pool = append(pool, testCounterpart(fmt.Sprintf("e%03d", i), int64(1000+i), 0, "bulk", ""))
	}

	got := g.Generate(txn, pool)
	assert.Len(t, got, 10)
}

func TestGenerateEmptyPoolIsNotAnError(t *testing.T) {
	g := NewGenerator(DefaultConfig())
	// Transaction of -1200.00 with nothing near it: empty set, no error.
	txn := testTxn(-120000, "no counterpart")

	got := g.Generate(txn, []model.Counterpart{
		testCounterpart("way-off", 500000, 0, "unrelated", ""),
	})
	assert.Empty(t, got)
}
