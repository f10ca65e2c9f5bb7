package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quillbooks/reconcile/internal/model"
)

// Duplicate-detection factor weights. Provider identity substitutes for the
// counterpart amount role the pair scorer plays, so it carries real weight.
const (
	dupWeightAmount   = 0.35
	dupWeightDate     = 0.20
	dupWeightText     = 0.20
	dupWeightProvider = 0.25
)

// Detector scores a newly introduced expense against recent unmatched
// expenses to surface probable double-bookings. Nothing is ever auto-merged:
// a false-positive warning is cheap, a silently dropped legitimate expense
// is not.
type Detector struct {
	scorer *Scorer
	cfg    Config
}

// NewDetector creates a duplicate detector sharing the pipeline's scorer.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, scorer: NewScorer(cfg)}
}

// Scan ranks potential duplicates of the candidate expense within the
// configured recent window. The returned hits are ordered by confidence,
// best first.
func (d *Detector) Scan(candidate *model.Expense, recent []model.Expense) []model.DuplicateHit {
	var hits []model.DuplicateHit

	for i := range recent {
		other := &recent[i]
		if other.ID == candidate.ID || other.TenantID != candidate.TenantID {
			continue
		}
		if !other.Status.Matchable() {
			continue
		}
		if daysApart(candidate.Date, other.Date) > d.cfg.DuplicateWindowDays {
			continue
		}

		hit := d.score(candidate, other)
		if hit.Tier == model.TierLow {
			continue
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Confidence != hits[j].Confidence {
			return hits[i].Confidence > hits[j].Confidence
		}
		return hits[i].OfExpenseID < hits[j].OfExpenseID
	})
	return hits
}

func (d *Detector) score(candidate, other *model.Expense) model.DuplicateHit {
	amount := d.scorer.amountScore(candidate.Amount, other.Amount)

	// Duplicate entries cluster within days, not the full window: decay over
	// the pair-matching window keeps same-week re-entries hot.
	days := daysApart(candidate.Date, other.Date)
	var date float64
	if days < d.cfg.DateWindowDays {
		date = 100 * (1 - float64(days)/float64(d.cfg.DateWindowDays))
	}

	text := Similarity(candidate.Description, other.Description) * 100
	provider := Similarity(candidate.Provider, other.Provider) * 100

	confidence := dupWeightAmount*amount +
		dupWeightDate*date +
		dupWeightText*text +
		dupWeightProvider*provider

	return model.DuplicateHit{
		ExpenseID:   candidate.ID,
		OfExpenseID: other.ID,
		Breakdown: model.ScoreBreakdown{
			Amount: amount,
			Date:   date,
			Text:   text,
		},
		Provider:    provider,
		Confidence:  confidence,
		Tier:        d.cfg.TierFor(confidence),
		Explanation: explainDuplicate(amount, days, text, provider),
	}
}

func explainDuplicate(amount float64, days int, text, provider float64) string {
	parts := make([]string, 0, 4)
	if amount == 100 {
		parts = append(parts, "identical amount")
	} else {
		parts = append(parts, "similar amount")
	}
	switch days {
	case 0:
		parts = append(parts, "same day")
	case 1:
		parts = append(parts, "1 day apart")
	default:
		parts = append(parts, fmt.Sprintf("%d days apart", days))
	}
	parts = append(parts, fmt.Sprintf("%.0f%% description similarity", text))
	if provider >= 80 {
		parts = append(parts, "same provider")
	}
	return strings.Join(parts, ", ")
}
