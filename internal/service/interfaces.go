// Package service defines the interfaces for all engine services.
package service

import (
	"context"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
)

// DateRange bounds a matching batch to a window of record dates. Zero values
// mean unbounded on that side.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the date falls inside the range.
func (r DateRange) Contains(date time.Time) bool {
	if !r.Start.IsZero() && date.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && date.After(r.End) {
		return false
	}
	return true
}

// TenantStats aggregates reconciliation progress for one tenant.
type TenantStats struct {
	TenantID            string
	Total               int
	Matched             int
	Pending             int
	AutoMatched         int
	ManualMatched       int
	AvgConfidence       float64
	AvgConfidenceAuto   float64
	AvgConfidenceManual float64
}

// JobReport summarizes one batch run. Partial success is normal: stale
// candidates are skipped and counted, never escalated to a batch failure.
type JobReport struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	JobID        string
	TenantID     string
	Errors       []string
	Processed    int
	AutoApplied  int
	Suggested    int
	SkippedStale int
	Unmatched    int
}

// Storage defines the contract for the engine's persistence layer.
type Storage interface {
	// Record ingestion (normalized records from collaborators).
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	SaveExpenses(ctx context.Context, expenses []model.Expense) error
	SaveInvoices(ctx context.Context, invoices []model.Invoice) error

	// Record reads.
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetExpenseByID(ctx context.Context, id string) (*model.Expense, error)
	GetInvoiceByID(ctx context.Context, id string) (*model.Invoice, error)
	GetUnmatchedTransactions(ctx context.Context, tenantID string, window DateRange) ([]model.Transaction, error)
	GetMatchableCounterparts(ctx context.Context, tenantID string) ([]model.Counterpart, error)
	GetRecentExpenses(ctx context.Context, tenantID string, since time.Time) ([]model.Expense, error)

	// Status transitions.
	UpdateTransactionStatus(ctx context.Context, id string, status model.RecordStatus, allocatedMinor int64) error
	UpdateCounterpartStatus(ctx context.Context, kind model.CounterpartKind, id string, status model.RecordStatus) error

	// Suggestions (persisted medium/low-tier candidates).
	SaveSuggestion(ctx context.Context, suggestion *model.Suggestion) error
	GetSuggestionByID(ctx context.Context, id string) (*model.Suggestion, error)
	GetPendingSuggestions(ctx context.Context, tenantID string, minConfidence float64) ([]model.Suggestion, error)
	ResolveSuggestion(ctx context.Context, id string, status model.SuggestionStatus) error
	SaveRejection(ctx context.Context, rejection *model.Rejection) error

	// Decisions and audit trail.
	SaveDecision(ctx context.Context, decision *model.MatchDecision) error
	GetDecisionByGroupID(ctx context.Context, groupID string) (*model.MatchDecision, error)
	MarkDecisionReversed(ctx context.Context, groupID string) error
	HasActiveDecisionFor(ctx context.Context, recordID string) (bool, error)
	SaveAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	GetAuditTrail(ctx context.Context, groupID string) ([]model.AuditEntry, error)

	// Job reports and statistics.
	SaveJobReport(ctx context.Context, report *JobReport) error
	GetTenantStats(ctx context.Context, tenantID string) (*TenantStats, error)

	// Database management.
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. All mutations of an apply
// or reversal happen inside one of these so the ledger is never left half
// written.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within the transaction.
	Storage
}
