// Package model defines the core domain models used throughout the engine.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// RecordStatus tracks where a record sits in the reconciliation state machine.
type RecordStatus string

// Record status constants. Transitions are monotonic except for explicit,
// audited reversal.
const (
	StatusUnmatched       RecordStatus = "unmatched"
	StatusAdvance         RecordStatus = "advance"
	StatusMatched         RecordStatus = "matched"
	StatusSplit           RecordStatus = "split"
	StatusNonReconcilable RecordStatus = "non_reconcilable"
)

// Matchable reports whether a record in this status may still enter a match.
func (s RecordStatus) Matchable() bool {
	return s == StatusUnmatched || s == StatusAdvance
}

// Transaction represents a single bank-ledger movement awaiting reconciliation.
// Amounts are signed minor currency units: outflows are negative.
type Transaction struct {
	Date           time.Time
	ID             string
	TenantID       string
	Description    string // Normalized free-text description
	Counterpart    string // Counterpart identifier, if the bank extracted one
	Currency       string
	Hash           string
	Status         RecordStatus
	Amount         int64 // Signed, minor units
	AllocatedMinor int64 // Sum of allocations from active decisions
}

// GenerateHash creates a stable hash for idempotent ingestion.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%d:%s:%s",
		t.TenantID,
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Currency,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// AbsAmount returns the transaction amount magnitude in minor units.
func (t *Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// Unallocated returns how much of the transaction amount is not yet
// consumed by active decisions.
func (t *Transaction) Unallocated() int64 {
	return t.AbsAmount() - t.AllocatedMinor
}
