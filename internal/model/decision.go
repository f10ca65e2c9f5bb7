package model

import "time"

// DecisionMethod records whether a decision was applied automatically or by
// a human reviewer.
type DecisionMethod string

const (
	// MethodAuto indicates the engine applied the match without review.
	MethodAuto DecisionMethod = "auto"
	// MethodManual indicates a reviewer accepted a suggestion.
	MethodManual DecisionMethod = "manual"
)

// Allocation assigns part of a transaction's amount to one counterpart
// record within a decision group.
type Allocation struct {
	TransactionID string
	CounterpartID string
	Kind          CounterpartKind
	AmountMinor   int64
}

// MatchDecision is the durable outcome of accepting a candidate. Immutable
// once written; reversal creates a new decision linked through ReversalOf
// rather than deleting history.
type MatchDecision struct {
	AppliedAt   time.Time
	GroupID     string
	TenantID    string
	ReversalOf  string // Group id of the decision this one reverses, if any
	Actor       string
	Method      DecisionMethod
	Allocations []Allocation
	Confidence  float64
	Reversed    bool // Set when a later decision reversed this one
}

// AllocatedTotal sums the group's allocations in minor units.
func (d *MatchDecision) AllocatedTotal() int64 {
	var total int64
	for _, a := range d.Allocations {
		total += a.AmountMinor
	}
	return total
}

// AuditEntry is an append-only record of every decision for compliance
// traceability: who applied it and the full score breakdown.
type AuditEntry struct {
	RecordedAt time.Time
	GroupID    string
	TenantID   string
	Actor      string
	Action     string // applied, reversed
	Detail     string // Plain-language explanation shown to reviewers
	Breakdown  ScoreBreakdown
	Confidence float64
}

// Audit actions.
const (
	AuditActionApplied  = "applied"
	AuditActionReversed = "reversed"
	AuditActionExcluded = "excluded"
)
