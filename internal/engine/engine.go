// Package engine orchestrates the reconciliation pipeline: it snapshots
// unmatched records, runs candidate generation and scoring, applies or queues
// the results, and exposes the review operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/match"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentTenants bounds the cross-tenant fan-out of a multi-tenant run.
const maxConcurrentTenants = 4

// MatchEngine wires the matching pipeline to storage and the ledger. One
// batch per tenant runs at a time; concurrent submissions for the same tenant
// serialize on a per-tenant lock.
type MatchEngine struct {
	storage     service.Storage
	cfg         match.Config
	generator   *match.Generator
	scorer      *match.Scorer
	solver      *match.Solver
	detector    *match.Detector
	ledger      *Ledger
	now         func() time.Time
	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

// New creates a matching engine. The configuration is validated up front so a
// bad tolerance fails the job before any batch work starts.
func New(storage service.Storage, cfg match.Config) (*MatchEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scorer := match.NewScorer(cfg)
	return &MatchEngine{
		storage:     storage,
		cfg:         cfg,
		generator:   match.NewGenerator(cfg),
		scorer:      scorer,
		solver:      match.NewSolver(cfg, scorer),
		detector:    match.NewDetector(cfg),
		ledger:      NewLedger(storage, cfg),
		now:         time.Now,
		tenantLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (e *MatchEngine) tenantLock(tenantID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		e.tenantLocks[tenantID] = lock
	}
	return lock
}

// SubmitBatch runs one matching pass over the tenant's unmatched transactions
// inside the window. High-tier candidates are applied automatically, medium
// and low ones are persisted as suggestions, transactions with no qualifying
// candidate stay unmatched. Stale conflicts and per-transaction failures are
// counted and skipped; only infrastructure failures abort the batch.
func (e *MatchEngine) SubmitBatch(ctx context.Context, tenantID string, window service.DateRange) (*service.JobReport, error) {
	lock := e.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	report := &service.JobReport{
		JobID:     uuid.NewString(),
		TenantID:  tenantID,
		StartedAt: e.now().UTC(),
	}

	slog.Info("Starting matching batch",
		"job_id", report.JobID,
		"tenant_id", tenantID)

	// The batch works from an immutable snapshot. Records that change
	// underneath it are caught by the apply-time staleness check.
	transactions, err := e.storage.GetUnmatchedTransactions(ctx, tenantID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot transactions: %w", err)
	}
	pool, err := e.storage.GetMatchableCounterparts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot counterparts: %w", err)
	}

	slog.Info("Snapshot loaded",
		"job_id", report.JobID,
		"transactions", len(transactions),
		"counterparts", len(pool))

	// Counterparts consumed by an auto-apply earlier in this batch must not
	// be proposed again later in the same batch.
	claimed := make(map[string]bool)

	// Re-running a batch over an unchanged dataset must not grow the review
	// queue: a transaction with a pending suggestion keeps it.
	pending, err := e.storage.GetPendingSuggestions(ctx, tenantID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending suggestions: %w", err)
	}
	alreadySuggested := make(map[string]bool, len(pending))
	for i := range pending {
		alreadySuggested[pending[i].Candidate.TransactionID] = true
	}

	for i := range transactions {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("batch canceled after %d transactions", report.Processed))
			break
		}

		txn := &transactions[i]
		report.Processed++

		candidate := e.bestCandidate(txn, e.available(pool, claimed))
		if candidate == nil {
			report.Unmatched++
			continue
		}

		switch candidate.Tier {
		case model.TierHigh:
			_, err := e.ledger.Apply(ctx, candidate, model.MethodAuto, "engine")
			if common.IsStale(err) {
				slog.Warn("Skipping stale candidate",
					"job_id", report.JobID,
					"transaction_id", txn.ID,
					"error", err)
				report.SkippedStale++
				continue
			}
			if err != nil {
				slog.Error("Failed to apply candidate",
					"job_id", report.JobID,
					"transaction_id", txn.ID,
					"error", err)
				report.Errors = append(report.Errors, fmt.Sprintf("transaction %s: %v", txn.ID, err))
				continue
			}
			for _, id := range candidate.CounterpartIDs() {
				claimed[id] = true
			}
			report.AutoApplied++

		default:
			if alreadySuggested[txn.ID] {
				slog.Debug("Suggestion already pending",
					"job_id", report.JobID,
					"transaction_id", txn.ID)
				report.Suggested++
				continue
			}
			suggestion := &model.Suggestion{
				GeneratedAt: candidate.GeneratedAt,
				ID:          candidate.ID,
				TenantID:    tenantID,
				JobID:       report.JobID,
				Candidate:   *candidate,
				Status:      model.SuggestionPending,
			}
			if err := e.storage.SaveSuggestion(ctx, suggestion); err != nil {
				slog.Error("Failed to save suggestion",
					"job_id", report.JobID,
					"transaction_id", txn.ID,
					"error", err)
				report.Errors = append(report.Errors, fmt.Sprintf("transaction %s: %v", txn.ID, err))
				continue
			}
			alreadySuggested[txn.ID] = true
			report.Suggested++
		}
	}

	report.FinishedAt = e.now().UTC()
	if err := e.storage.SaveJobReport(ctx, report); err != nil {
		slog.Error("Failed to save job report", "job_id", report.JobID, "error", err)
	}

	slog.Info("Matching batch finished",
		"job_id", report.JobID,
		"processed", report.Processed,
		"auto_applied", report.AutoApplied,
		"suggested", report.Suggested,
		"skipped_stale", report.SkippedStale,
		"unmatched", report.Unmatched)
	return report, nil
}

// SubmitBatches runs one batch per tenant with bounded parallelism. Tenants
// share nothing, so cross-tenant runs are safe to fan out.
func (e *MatchEngine) SubmitBatches(ctx context.Context, tenantIDs []string, window service.DateRange) ([]*service.JobReport, error) {
	reports := make([]*service.JobReport, len(tenantIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTenants)
	for i, tenantID := range tenantIDs {
		i, tenantID := i, tenantID
		g.Go(func() error {
			report, err := e.SubmitBatch(ctx, tenantID, window)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// available filters counterparts already consumed earlier in the batch.
func (e *MatchEngine) available(pool []model.Counterpart, claimed map[string]bool) []model.Counterpart {
	if len(claimed) == 0 {
		return pool
	}
	out := make([]model.Counterpart, 0, len(pool))
	for _, cp := range pool {
		if !claimed[cp.ID] {
			out = append(out, cp)
		}
	}
	return out
}

// bestCandidate runs the pipeline for one transaction: direct 1:1 scoring
// over the generated pool first, then the combination solver when no single
// record makes a convincing match. Returns nil when nothing qualifies, which
// is a normal outcome.
func (e *MatchEngine) bestCandidate(txn *model.Transaction, pool []model.Counterpart) *model.MatchCandidate {
	candidates := e.generator.Generate(txn, pool)
	if len(candidates) == 0 {
		return nil
	}

	target := txn.AbsAmount()
	tol := e.cfg.Tolerance(target)

	var best *model.MatchCandidate
	for _, cp := range candidates {
		diff := target - cp.Amount
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			continue
		}
		scored := e.scorer.Score(txn, []model.Counterpart{cp})
		if best == nil || scored.Confidence > best.Confidence {
			best = &scored
		}
	}

	// Anything short of a high-confidence 1:1 match may still be beaten by
	// a split across several records.
	if best == nil || best.Tier != model.TierHigh {
		if split := e.solver.Solve(txn, candidates); split != nil {
			if best == nil || split.Confidence > best.Confidence {
				best = split
			}
		}
	}
	return best
}

// Suggestions returns the tenant's pending suggestions at or above the
// confidence threshold, best first.
func (e *MatchEngine) Suggestions(ctx context.Context, tenantID string, minConfidence float64) ([]model.Suggestion, error) {
	return e.storage.GetPendingSuggestions(ctx, tenantID, minConfidence)
}

// ApplyCandidate promotes a pending suggestion to a decision on behalf of a
// reviewer. A stale suggestion is marked as such and the conflict is returned
// to the caller; it is never applied partially.
func (e *MatchEngine) ApplyCandidate(ctx context.Context, suggestionID, actor string) (*model.MatchDecision, error) {
	suggestion, err := e.storage.GetSuggestionByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != model.SuggestionPending {
		return nil, common.NewUserError(
			fmt.Sprintf("suggestion %s is %s, not pending", suggestionID, suggestion.Status), nil)
	}

	// Manual applies serialize against running batches for the same tenant.
	lock := e.tenantLock(suggestion.TenantID)
	lock.Lock()
	defer lock.Unlock()

	decision, err := e.ledger.Apply(ctx, &suggestion.Candidate, model.MethodManual, actor)
	if common.IsStale(err) {
		if resolveErr := e.storage.ResolveSuggestion(ctx, suggestionID, model.SuggestionStale); resolveErr != nil {
			slog.Error("Failed to mark suggestion stale", "suggestion_id", suggestionID, "error", resolveErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := e.storage.ResolveSuggestion(ctx, suggestionID, model.SuggestionApplied); err != nil {
		return nil, fmt.Errorf("decision %s applied but suggestion not resolved: %w", decision.GroupID, err)
	}
	return decision, nil
}

// RejectCandidate declines a pending suggestion and records the reviewer's
// reason. The underlying records stay open for future batches.
func (e *MatchEngine) RejectCandidate(ctx context.Context, suggestionID, actor, reason string) error {
	suggestion, err := e.storage.GetSuggestionByID(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.Status != model.SuggestionPending {
		return common.NewUserError(
			fmt.Sprintf("suggestion %s is %s, not pending", suggestionID, suggestion.Status), nil)
	}

	if err := e.storage.ResolveSuggestion(ctx, suggestionID, model.SuggestionRejected); err != nil {
		return err
	}
	return e.storage.SaveRejection(ctx, &model.Rejection{
		RejectedAt:   e.now().UTC(),
		SuggestionID: suggestionID,
		TenantID:     suggestion.TenantID,
		Actor:        actor,
		Reason:       reason,
	})
}

// ReverseDecision undoes an applied decision and reopens its records.
func (e *MatchEngine) ReverseDecision(ctx context.Context, groupID, actor, reason string) (*model.MatchDecision, error) {
	return e.ledger.Reverse(ctx, groupID, actor, reason)
}

// AuditTrail returns the full decision history of a group, oldest first.
func (e *MatchEngine) AuditTrail(ctx context.Context, groupID string) ([]model.AuditEntry, error) {
	return e.storage.GetAuditTrail(ctx, groupID)
}

// Stats aggregates reconciliation progress for a tenant.
func (e *MatchEngine) Stats(ctx context.Context, tenantID string) (*service.TenantStats, error) {
	return e.storage.GetTenantStats(ctx, tenantID)
}

// MarkNonReconcilable excludes a record from all future matching. Bank fees
// and internal transfers have no counterpart record and would otherwise sit
// in the unmatched queue forever; the kind is "transaction", "expense", or
// "invoice".
func (e *MatchEngine) MarkNonReconcilable(ctx context.Context, kind, id, actor, reason string) error {
	var tenantID string
	var status model.RecordStatus

	switch kind {
	case "transaction":
		txn, err := e.storage.GetTransactionByID(ctx, id)
		if err != nil {
			return err
		}
		tenantID, status = txn.TenantID, txn.Status
	case string(model.KindExpense):
		exp, err := e.storage.GetExpenseByID(ctx, id)
		if err != nil {
			return err
		}
		tenantID, status = exp.TenantID, exp.Status
	case string(model.KindInvoice):
		inv, err := e.storage.GetInvoiceByID(ctx, id)
		if err != nil {
			return err
		}
		tenantID, status = inv.TenantID, inv.Status
	default:
		return common.NewUserError(
			fmt.Sprintf("unknown record kind %q; use transaction, expense, or invoice", kind), nil)
	}

	if !status.Matchable() {
		return common.NewUserError(
			fmt.Sprintf("%s %s is %s and cannot be excluded", kind, id, status), nil)
	}

	if kind == "transaction" {
		if err := e.storage.UpdateTransactionStatus(ctx, id, model.StatusNonReconcilable, 0); err != nil {
			return err
		}
	} else {
		if err := e.storage.UpdateCounterpartStatus(ctx, model.CounterpartKind(kind), id, model.StatusNonReconcilable); err != nil {
			return err
		}
	}

	return e.storage.SaveAuditEntry(ctx, &model.AuditEntry{
		RecordedAt: e.now().UTC(),
		GroupID:    id,
		TenantID:   tenantID,
		Actor:      actor,
		Action:     model.AuditActionExcluded,
		Detail:     reason,
	})
}

// IngestTransactions persists normalized bank transactions. Re-submitting the
// same records is a no-op thanks to hash-based idempotence.
func (e *MatchEngine) IngestTransactions(ctx context.Context, transactions []model.Transaction) error {
	return e.storage.SaveTransactions(ctx, transactions)
}

// IngestInvoices persists normalized invoice records.
func (e *MatchEngine) IngestInvoices(ctx context.Context, invoices []model.Invoice) error {
	return e.storage.SaveInvoices(ctx, invoices)
}

// IngestExpenses persists normalized expenses and scans each one against the
// tenant's recent expenses for probable double-bookings. Hits are returned as
// warnings only; nothing is merged or dropped automatically.
func (e *MatchEngine) IngestExpenses(ctx context.Context, expenses []model.Expense) ([]model.DuplicateHit, error) {
	if err := e.storage.SaveExpenses(ctx, expenses); err != nil {
		return nil, err
	}

	var hits []model.DuplicateHit
	for i := range expenses {
		exp := &expenses[i]
		since := exp.Date.AddDate(0, 0, -e.cfg.DuplicateWindowDays)
		recent, err := e.storage.GetRecentExpenses(ctx, exp.TenantID, since)
		if err != nil {
			return hits, fmt.Errorf("failed to load recent expenses for %s: %w", exp.ID, err)
		}
		hits = append(hits, e.detector.Scan(exp, recent)...)
	}

	if len(hits) > 0 {
		slog.Warn("Possible duplicate expenses detected", "hits", len(hits))
	}
	return hits, nil
}

// ScanDuplicates re-runs duplicate detection for one stored expense.
func (e *MatchEngine) ScanDuplicates(ctx context.Context, expenseID string) ([]model.DuplicateHit, error) {
	exp, err := e.storage.GetExpenseByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	since := exp.Date.AddDate(0, 0, -e.cfg.DuplicateWindowDays)
	recent, err := e.storage.GetRecentExpenses(ctx, exp.TenantID, since)
	if err != nil {
		return nil, err
	}
	return e.detector.Scan(exp, recent), nil
}

// ScanTenantDuplicates sweeps a tenant's expenses from the given date and
// reports every probable duplicate pair once. Each pair appears with the
// lexically smaller expense id as the original.
func (e *MatchEngine) ScanTenantDuplicates(ctx context.Context, tenantID string, since time.Time) ([]model.DuplicateHit, error) {
	// Widen the load window so pairs straddling the start date still score.
	expenses, err := e.storage.GetRecentExpenses(ctx, tenantID, since.AddDate(0, 0, -e.cfg.DuplicateWindowDays))
	if err != nil {
		return nil, err
	}

	var hits []model.DuplicateHit
	for i := range expenses {
		exp := &expenses[i]
		if exp.Date.Before(since) {
			continue
		}
		for _, hit := range e.detector.Scan(exp, expenses) {
			if hit.OfExpenseID < hit.ExpenseID {
				hits = append(hits, hit)
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Confidence != hits[j].Confidence {
			return hits[i].Confidence > hits[j].Confidence
		}
		return hits[i].ExpenseID < hits[j].ExpenseID
	})

	slog.Info("Tenant duplicate scan complete",
		"tenant", tenantID,
		"expenses", len(expenses),
		"hits", len(hits))
	return hits, nil
}
