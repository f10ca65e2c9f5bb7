package match

import (
	"sort"

	"github.com/quillbooks/reconcile/internal/model"
)

// Generator produces the bounded candidate pool a transaction is scored
// against. The hard caps here are what keep per-transaction latency bounded
// regardless of dataset size; everything downstream assumes the pool is
// already small.
type Generator struct {
	cfg Config
}

// NewGenerator creates a candidate generator.
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate filters the tenant's counterpart pool down to records that could
// plausibly reconcile the transaction: matchable status, date within the
// window, and amount either inside the tolerance band (1:1 match) or
// strictly smaller in magnitude (split search). Results are ordered by
// absolute amount difference, then date proximity, and capped at
// MaxCandidates. An empty result is a normal outcome.
func (g *Generator) Generate(txn *model.Transaction, pool []model.Counterpart) []model.Counterpart {
	target := txn.AbsAmount()
	tol := g.cfg.Tolerance(target)

	var out []model.Counterpart
	for _, cp := range pool {
		if cp.TenantID != txn.TenantID {
			continue
		}
		if !cp.Status.Matchable() {
			continue
		}
		if daysApart(txn.Date, cp.Date) > g.cfg.DateWindowDays {
			continue
		}
		if cp.Amount <= 0 {
			continue
		}

		diff := target - cp.Amount
		if diff < 0 {
			diff = -diff
		}
		withinTolerance := diff <= tol
		splitComponent := cp.Amount < target
		if !withinTolerance && !splitComponent {
			continue
		}

		out = append(out, cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di := absDiff(target, out[i].Amount)
		dj := absDiff(target, out[j].Amount)
		if di != dj {
			return di < dj
		}
		return daysApart(txn.Date, out[i].Date) < daysApart(txn.Date, out[j].Date)
	})

	if len(out) > g.cfg.MaxCandidates {
		out = out[:g.cfg.MaxCandidates]
	}
	return out
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
