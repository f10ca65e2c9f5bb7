package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/match"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
)

// Ledger owns the durable side of matching: it turns accepted candidates into
// decisions and decisions back into open records. Every apply and reversal
// runs inside a single database transaction so the ledger is never left half
// written.
type Ledger struct {
	storage service.Storage
	cfg     match.Config
	retry   common.RetryOptions
	now     func() time.Time
}

// NewLedger creates a ledger writer.
func NewLedger(storage service.Storage, cfg match.Config) *Ledger {
	return &Ledger{
		storage: storage,
		cfg:     cfg,
		retry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
		},
		now: time.Now,
	}
}

// Apply commits a candidate as a match decision. Record statuses are
// re-checked inside the transaction; if anything changed since the candidate
// was generated the apply fails with a StaleCandidateError and nothing is
// written. Transient commit failures are retried, stale conflicts never are.
func (l *Ledger) Apply(ctx context.Context, candidate *model.MatchCandidate, method model.DecisionMethod, actor string) (*model.MatchDecision, error) {
	if len(candidate.Counterparts) == 0 {
		return nil, fmt.Errorf("candidate %s has no counterparts", candidate.ID)
	}

	var decision *model.MatchDecision
	err := common.WithRetry(ctx, func() error {
		var applyErr error
		decision, applyErr = l.applyOnce(ctx, candidate, method, actor)
		return applyErr
	}, l.retry)
	if err != nil {
		return nil, err
	}

	slog.Info("Applied match decision",
		"group_id", decision.GroupID,
		"transaction_id", candidate.TransactionID,
		"counterparts", len(candidate.Counterparts),
		"method", method,
		"confidence", candidate.Confidence)
	return decision, nil
}

func (l *Ledger) applyOnce(ctx context.Context, candidate *model.MatchCandidate, method model.DecisionMethod, actor string) (*model.MatchDecision, error) {
	tx, err := l.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txn, err := l.recheck(ctx, tx, candidate)
	if err != nil {
		return nil, err
	}

	decision := l.buildDecision(txn, candidate, method, actor)

	// Defensive re-verification of the allocation sum right before writing.
	// buildDecision pins the total to the transaction magnitude, so a
	// violation here means an arithmetic bug upstream and the apply must
	// fail closed.
	if err := l.checkAllocationInvariant(txn, decision); err != nil {
		return nil, err
	}

	status := model.StatusMatched
	if candidate.IsSplit() {
		status = model.StatusSplit
	}
	if err := tx.UpdateTransactionStatus(ctx, txn.ID, status, txn.AbsAmount()); err != nil {
		return nil, err
	}
	for _, cp := range candidate.Counterparts {
		if err := tx.UpdateCounterpartStatus(ctx, cp.Kind, cp.ID, model.StatusMatched); err != nil {
			return nil, err
		}
	}

	if err := tx.SaveDecision(ctx, decision); err != nil {
		return nil, err
	}
	if err := tx.SaveAuditEntry(ctx, &model.AuditEntry{
		RecordedAt: decision.AppliedAt,
		GroupID:    decision.GroupID,
		TenantID:   decision.TenantID,
		Actor:      actor,
		Action:     model.AuditActionApplied,
		Detail:     candidate.Explanation,
		Breakdown:  candidate.Breakdown,
		Confidence: candidate.Confidence,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit decision %s: %w", decision.GroupID, err)
	}
	return decision, nil
}

// recheck re-reads every record the candidate touches inside the transaction
// and confirms it is still free to match.
func (l *Ledger) recheck(ctx context.Context, tx service.Transaction, candidate *model.MatchCandidate) (*model.Transaction, error) {
	txn, err := tx.GetTransactionByID(ctx, candidate.TransactionID)
	if err != nil {
		return nil, err
	}
	if !txn.Status.Matchable() {
		return nil, &common.StaleCandidateError{
			CandidateID: candidate.ID,
			RecordID:    txn.ID,
			Status:      string(txn.Status),
		}
	}

	for _, cp := range candidate.Counterparts {
		status, err := l.counterpartStatus(ctx, tx, cp)
		if err != nil {
			return nil, err
		}
		if !status.Matchable() {
			return nil, &common.StaleCandidateError{
				CandidateID: candidate.ID,
				RecordID:    cp.ID,
				Status:      string(status),
			}
		}

		active, err := tx.HasActiveDecisionFor(ctx, cp.ID)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, &common.StaleCandidateError{
				CandidateID: candidate.ID,
				RecordID:    cp.ID,
				Status:      "already decided",
			}
		}
	}

	active, err := tx.HasActiveDecisionFor(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, &common.StaleCandidateError{
			CandidateID: candidate.ID,
			RecordID:    txn.ID,
			Status:      "already decided",
		}
	}
	return txn, nil
}

func (l *Ledger) counterpartStatus(ctx context.Context, tx service.Transaction, cp model.Counterpart) (model.RecordStatus, error) {
	switch cp.Kind {
	case model.KindExpense:
		exp, err := tx.GetExpenseByID(ctx, cp.ID)
		if err != nil {
			return "", err
		}
		return exp.Status, nil
	case model.KindInvoice:
		inv, err := tx.GetInvoiceByID(ctx, cp.ID)
		if err != nil {
			return "", err
		}
		return inv.Status, nil
	default:
		return "", fmt.Errorf("unknown counterpart kind %q", cp.Kind)
	}
}

// buildDecision lays the transaction magnitude out across the counterparts.
// Each counterpart is allocated its own amount; any within-tolerance residual
// lands on the largest allocation so the group total always equals the
// transaction magnitude exactly.
func (l *Ledger) buildDecision(txn *model.Transaction, candidate *model.MatchCandidate, method model.DecisionMethod, actor string) *model.MatchDecision {
	allocations := make([]model.Allocation, len(candidate.Counterparts))
	var sum int64
	largest := 0
	for i, cp := range candidate.Counterparts {
		allocations[i] = model.Allocation{
			TransactionID: txn.ID,
			CounterpartID: cp.ID,
			Kind:          cp.Kind,
			AmountMinor:   cp.Amount,
		}
		sum += cp.Amount
		if cp.Amount > allocations[largest].AmountMinor {
			largest = i
		}
	}
	allocations[largest].AmountMinor += txn.AbsAmount() - sum

	return &model.MatchDecision{
		AppliedAt:   l.now().UTC(),
		GroupID:     uuid.NewString(),
		TenantID:    txn.TenantID,
		Actor:       actor,
		Method:      method,
		Allocations: allocations,
		Confidence:  candidate.Confidence,
	}
}

func (l *Ledger) checkAllocationInvariant(txn *model.Transaction, decision *model.MatchDecision) error {
	want := txn.AbsAmount()
	got := decision.AllocatedTotal()
	diff := want - got
	if diff < 0 {
		diff = -diff
	}
	if diff > l.cfg.Epsilon(want) {
		return &common.AllocationInvariantError{
			GroupID: decision.GroupID,
			Want:    want,
			Got:     got,
		}
	}
	return nil
}

// Reverse undoes a decision by writing a new linked decision and reopening
// the records it held. The original row is only flagged, never rewritten, so
// the audit trail stays complete.
func (l *Ledger) Reverse(ctx context.Context, groupID, actor, reason string) (*model.MatchDecision, error) {
	var reversal *model.MatchDecision
	err := common.WithRetry(ctx, func() error {
		var revErr error
		reversal, revErr = l.reverseOnce(ctx, groupID, actor, reason)
		return revErr
	}, l.retry)
	if err != nil {
		return nil, err
	}

	slog.Info("Reversed match decision",
		"group_id", groupID,
		"reversal_group_id", reversal.GroupID,
		"actor", actor)
	return reversal, nil
}

func (l *Ledger) reverseOnce(ctx context.Context, groupID, actor, reason string) (*model.MatchDecision, error) {
	tx, err := l.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	original, err := tx.GetDecisionByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if original.Reversed {
		return nil, common.NewUserError(
			fmt.Sprintf("decision %s is already reversed", groupID), nil)
	}
	if original.ReversalOf != "" {
		return nil, common.NewUserError(
			fmt.Sprintf("decision %s is itself a reversal and cannot be reversed", groupID), nil)
	}

	if err := tx.MarkDecisionReversed(ctx, groupID); err != nil {
		return nil, err
	}

	reversal := &model.MatchDecision{
		AppliedAt:   l.now().UTC(),
		GroupID:     uuid.NewString(),
		TenantID:    original.TenantID,
		ReversalOf:  groupID,
		Actor:       actor,
		Method:      model.MethodManual,
		Allocations: original.Allocations,
		Confidence:  original.Confidence,
	}
	if err := tx.SaveDecision(ctx, reversal); err != nil {
		return nil, err
	}

	// Reopen everything the original decision held.
	reopened := make(map[string]bool)
	for _, alloc := range original.Allocations {
		if !reopened[alloc.TransactionID] {
			if err := tx.UpdateTransactionStatus(ctx, alloc.TransactionID, model.StatusUnmatched, 0); err != nil {
				return nil, err
			}
			reopened[alloc.TransactionID] = true
		}
		if err := tx.UpdateCounterpartStatus(ctx, alloc.Kind, alloc.CounterpartID, model.StatusUnmatched); err != nil {
			return nil, err
		}
	}

	if err := tx.SaveAuditEntry(ctx, &model.AuditEntry{
		RecordedAt: reversal.AppliedAt,
		GroupID:    groupID,
		TenantID:   original.TenantID,
		Actor:      actor,
		Action:     model.AuditActionReversed,
		Detail:     reason,
		Confidence: original.Confidence,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reversal of %s: %w", groupID, err)
	}
	return reversal, nil
}
