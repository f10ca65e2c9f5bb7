package match

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillbooks/reconcile/internal/model"
)

// Factor weights for the aggregate confidence score. These are fixed by
// design; only the tier thresholds are configuration.
const (
	weightAmount = 0.4
	weightDate   = 0.3
	weightText   = 0.3

	// merchantBonus is the cap on the known-payee bonus, added to the text
	// factor before weighting.
	merchantBonus = 15.0
)

// Scorer computes multi-factor confidence scores for candidate pairs and
// candidate groups.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// NewScorer creates a Scorer for the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score evaluates one transaction against one-or-many counterpart records
// and returns a candidate with the full factor breakdown. For groups, the
// amount factor is computed on the subset sum while the date and text
// factors are averaged across members.
func (s *Scorer) Score(txn *model.Transaction, group []model.Counterpart) model.MatchCandidate {
	var sum int64
	for _, cp := range group {
		sum += cp.Amount
	}

	amount := s.amountScore(txn.AbsAmount(), sum)

	var dateTotal, textTotal, bonusTotal float64
	for _, cp := range group {
		dateTotal += s.dateScore(txn.Date, cp.Date)
		text, bonus := s.textScore(txn, cp)
		textTotal += text
		bonusTotal += bonus
	}
	date := dateTotal / float64(len(group))
	text := textTotal / float64(len(group))
	bonus := bonusTotal / float64(len(group))

	confidence := weightAmount*amount + weightDate*date + weightText*text

	breakdown := model.ScoreBreakdown{
		Amount: amount,
		Date:   date,
		Text:   text,
		Bonus:  bonus,
	}

	return model.MatchCandidate{
		GeneratedAt:   s.now(),
		ID:            uuid.NewString(),
		TenantID:      txn.TenantID,
		TransactionID: txn.ID,
		Counterparts:  group,
		Breakdown:     breakdown,
		Confidence:    confidence,
		Tier:          s.cfg.TierFor(confidence),
		Explanation:   s.explain(txn, group, sum, breakdown),
	}
}

// amountScore is 100 on an exact match and decays linearly to exactly 0 at
// the tolerance edge.
func (s *Scorer) amountScore(target, candidate int64) float64 {
	diff := target - candidate
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return 100
	}

	tol := s.cfg.Tolerance(target)
	if diff >= tol {
		return 0
	}
	return 100 * (1 - float64(diff)/float64(tol))
}

// dateScore is 100 for same-day and decays linearly to 0 at the edge of the
// date window.
func (s *Scorer) dateScore(a, b time.Time) float64 {
	days := daysApart(a, b)
	window := s.cfg.DateWindowDays
	if days >= window {
		return 0
	}
	return 100 * (1 - float64(days)/float64(window))
}

// textScore compares the transaction narrative against the counterpart's
// description and provider name, taking the better of the two, and applies
// the capped known-merchant bonus. Returns the clamped score and the bonus
// actually granted.
func (s *Scorer) textScore(txn *model.Transaction, cp model.Counterpart) (float64, float64) {
	base := Similarity(txn.Description, cp.Description)
	if byProvider := Similarity(txn.Description, cp.Provider); byProvider > base {
		base = byProvider
	}
	if txn.Counterpart != "" {
		if byCounterpart := Similarity(txn.Counterpart, cp.Provider); byCounterpart > base {
			base = byCounterpart
		}
	}

	score := base * 100
	var bonus float64
	if merchantPatternHit(s.cfg.MerchantPatterns, txn.Description, cp.Description+" "+cp.Provider) {
		bonus = merchantBonus
		score += bonus
	}
	if score > 100 {
		bonus -= score - 100
		score = 100
	}
	return score, bonus
}

// explain renders the plain-language summary reviewers see next to every
// suggestion.
func (s *Scorer) explain(txn *model.Transaction, group []model.Counterpart, sum int64, b model.ScoreBreakdown) string {
	parts := make([]string, 0, 4)

	diff := txn.AbsAmount() - sum
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		parts = append(parts, "exact amount match")
	default:
		parts = append(parts, fmt.Sprintf("amount within tolerance (off by %d minor units)", diff))
	}

	minDays := math.MaxInt32
	for _, cp := range group {
		if d := daysApart(txn.Date, cp.Date); d < minDays {
			minDays = d
		}
	}
	switch minDays {
	case 0:
		parts = append(parts, "same day")
	case 1:
		parts = append(parts, "1 day apart")
	default:
		parts = append(parts, fmt.Sprintf("%d days apart", minDays))
	}

	parts = append(parts, fmt.Sprintf("%.0f%% text similarity", b.Text))

	if len(group) > 1 {
		parts = append(parts, fmt.Sprintf("split across %d records", len(group)))
	}

	return strings.Join(parts, ", ")
}

// TierFor maps a confidence score onto an automation tier.
func (c Config) TierFor(confidence float64) model.ConfidenceTier {
	switch {
	case confidence >= c.HighThreshold:
		return model.TierHigh
	case confidence >= c.MediumThreshold:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// daysApart returns the whole calendar days between two dates.
func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
