package model

import "time"

// ConfidenceTier buckets a continuous confidence score for automation
// decisions. Only high-tier candidates are eligible for auto-apply.
type ConfidenceTier string

const (
	// TierHigh marks candidates safe to apply without human review.
	TierHigh ConfidenceTier = "high"
	// TierMedium marks candidates queued for manual review.
	TierMedium ConfidenceTier = "medium"
	// TierLow marks weak candidates kept only for completeness.
	TierLow ConfidenceTier = "low"
)

// ScoreBreakdown holds the individual factor scores behind a confidence
// score. Each factor is normalized to [0, 100]. The breakdown is always
// carried alongside the aggregate so reviewers and the audit trail never
// see a bare number.
type ScoreBreakdown struct {
	Amount float64
	Date   float64
	Text   float64
	Bonus  float64 // Known-merchant bonus already folded into Text, capped
}

// MatchCandidate is an ephemeral scoring result: one transaction against one
// or more counterpart records. It is either promoted to a MatchDecision or
// persisted as a pending suggestion; never both.
type MatchCandidate struct {
	GeneratedAt   time.Time
	ID            string
	TenantID      string
	TransactionID string
	Explanation   string
	Counterparts  []Counterpart
	Breakdown     ScoreBreakdown
	Confidence    float64
	Tier          ConfidenceTier
}

// IsSplit reports whether the candidate allocates the transaction across
// multiple counterpart records.
func (c *MatchCandidate) IsSplit() bool {
	return len(c.Counterparts) > 1
}

// CounterpartIDs returns the referenced counterpart record ids in order.
func (c *MatchCandidate) CounterpartIDs() []string {
	ids := make([]string, len(c.Counterparts))
	for i, cp := range c.Counterparts {
		ids[i] = cp.ID
	}
	return ids
}

// SuggestionStatus tracks the lifecycle of a persisted suggestion.
type SuggestionStatus string

const (
	// SuggestionPending awaits a human accept/reject.
	SuggestionPending SuggestionStatus = "pending"
	// SuggestionApplied was promoted to a decision.
	SuggestionApplied SuggestionStatus = "applied"
	// SuggestionRejected was declined by a reviewer.
	SuggestionRejected SuggestionStatus = "rejected"
	// SuggestionStale references records that have since changed status.
	SuggestionStale SuggestionStatus = "stale"
)

// Suggestion is a persisted medium/low-tier candidate awaiting review.
type Suggestion struct {
	GeneratedAt time.Time
	ResolvedAt  *time.Time
	ID          string
	TenantID    string
	JobID       string
	Candidate   MatchCandidate
	Status      SuggestionStatus
}

// Rejection is the negative-feedback record written when a reviewer declines
// a suggestion. Kept for future scoring-weight tuning.
type Rejection struct {
	RejectedAt   time.Time
	SuggestionID string
	TenantID     string
	Actor        string
	Reason       string
}

// DuplicateHit ranks a potential double-booked expense.
type DuplicateHit struct {
	ExpenseID   string
	OfExpenseID string
	Explanation string
	Breakdown   ScoreBreakdown
	Provider    float64 // Provider-name similarity factor, [0, 100]
	Confidence  float64
	Tier        ConfidenceTier
}
