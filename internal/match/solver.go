package match

import (
	"github.com/quillbooks/reconcile/internal/model"
)

// Solver searches a candidate pool for subsets whose amounts sum to the
// transaction amount within tolerance. It runs a memoized dynamic program
// over a discretized minor-unit axis instead of enumerating subsets: the
// state space is bounded by buckets x group size, so the search stays
// O(candidates x buckets x K) no matter how combinatorial the pool is.
type Solver struct {
	scorer *Scorer
	cfg    Config
}

// NewSolver creates a combination solver sharing the pipeline's scorer.
func NewSolver(cfg Config, scorer *Scorer) *Solver {
	return &Solver{cfg: cfg, scorer: scorer}
}

// dpNode is one reachable (sum, item count) state plus the chain needed to
// reconstruct its subset.
type dpNode struct {
	prev  *dpNode
	sum   int64
	item  int
	count int
}

// Solve returns the highest-confidence subset of 2..MaxGroupSize candidates
// summing to the transaction amount within tolerance, or nil when no subset
// qualifies. When several disjoint subsets qualify only the best is
// returned; proposing the runners-up would just cause decision paralysis.
func (s *Solver) Solve(txn *model.Transaction, candidates []model.Counterpart) *model.MatchCandidate {
	target := txn.AbsAmount()
	tol := s.cfg.Tolerance(target)
	ceiling := target + tol

	// Items that can never contribute are excluded up front.
	items := make([]model.Counterpart, 0, len(candidates))
	for _, cp := range candidates {
		if cp.Amount > 0 && cp.Amount <= ceiling {
			items = append(items, cp)
		}
	}
	if len(items) < 2 {
		return nil
	}

	bucketSize := ceiling / int64(s.cfg.MaxBuckets)
	if bucketSize < 1 {
		bucketSize = 1
	}
	maxCount := s.cfg.MaxGroupSize

	// One representative node per (bucket, count) state. First writer wins,
	// which is deterministic because the generator pre-sorts candidates.
	states := make(map[int64]*dpNode)
	root := &dpNode{}
	states[0] = root

	var complete []*dpNode

	for idx := range items {
		amount := items[idx].Amount

		// Snapshot before extending so an item is used at most once per
		// subset.
		snapshot := make([]*dpNode, 0, len(states))
		for _, node := range states {
			snapshot = append(snapshot, node)
		}

		for _, node := range snapshot {
			sum := node.sum + amount
			count := node.count + 1
			if sum > ceiling || count > maxCount {
				continue
			}

			key := (sum/bucketSize)*int64(maxCount+1) + int64(count)
			if _, seen := states[key]; seen {
				continue
			}

			next := &dpNode{prev: node, sum: sum, item: idx, count: count}
			states[key] = next

			if count >= 2 && sum >= target-tol && sum <= ceiling {
				complete = append(complete, next)
			}
		}
	}

	if len(complete) == 0 {
		return nil
	}

	var best *model.MatchCandidate
	for _, node := range complete {
		group := s.reconstruct(items, node)
		candidate := s.scorer.Score(txn, group)
		if best == nil || better(&candidate, best) {
			best = &candidate
		}
	}
	return best
}

// reconstruct walks the predecessor chain back into the subset it encodes.
func (s *Solver) reconstruct(items []model.Counterpart, node *dpNode) []model.Counterpart {
	var group []model.Counterpart
	for n := node; n != nil && n.prev != nil; n = n.prev {
		group = append(group, items[n.item])
	}
	// Restore generation order.
	for i, j := 0, len(group)-1; i < j; i, j = i+1, j-1 {
		group[i], group[j] = group[j], group[i]
	}
	return group
}

// better orders candidates by confidence, preferring smaller groups and then
// earlier counterpart ids so repeated runs propose the same subset.
func better(a, b *model.MatchCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if len(a.Counterparts) != len(b.Counterparts) {
		return len(a.Counterparts) < len(b.Counterparts)
	}
	return a.Counterparts[0].ID < b.Counterparts[0].ID
}
