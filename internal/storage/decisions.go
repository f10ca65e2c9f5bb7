package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
)

// SaveDecision persists an immutable match decision and its allocations.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, decision *model.MatchDecision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDecision(decision); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveDecisionTx(ctx, tx, decision); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveDecisionTx(ctx context.Context, q executor, decision *model.MatchDecision) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO decisions (
			group_id, tenant_id, method, actor, confidence,
			reversal_of, reversed, applied_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		decision.GroupID,
		decision.TenantID,
		string(decision.Method),
		decision.Actor,
		decision.Confidence,
		decision.ReversalOf,
		boolToInt(decision.Reversed),
		decision.AppliedAt,
	); err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", decision.GroupID, err)
	}

	for _, alloc := range decision.Allocations {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO allocations (group_id, transaction_id, counterpart_id, kind, amount_minor)
			VALUES (?, ?, ?, ?, ?)
		`,
			decision.GroupID,
			alloc.TransactionID,
			alloc.CounterpartID,
			string(alloc.Kind),
			alloc.AmountMinor,
		); err != nil {
			return fmt.Errorf("failed to insert allocation for %s: %w", decision.GroupID, err)
		}
	}
	return nil
}

// GetDecisionByGroupID retrieves a decision with its allocations.
func (s *SQLiteStorage) GetDecisionByGroupID(ctx context.Context, groupID string) (*model.MatchDecision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return nil, err
	}
	return s.getDecisionByGroupIDTx(ctx, s.db, groupID)
}

func (s *SQLiteStorage) getDecisionByGroupIDTx(ctx context.Context, q executor, groupID string) (*model.MatchDecision, error) {
	var decision model.MatchDecision
	var method string
	var reversed int
	err := q.QueryRowContext(ctx, `
		SELECT group_id, tenant_id, method, actor, confidence,
		       reversal_of, reversed, applied_at
		FROM decisions WHERE group_id = ?
	`, groupID).Scan(
		&decision.GroupID,
		&decision.TenantID,
		&method,
		&decision.Actor,
		&decision.Confidence,
		&decision.ReversalOf,
		&reversed,
		&decision.AppliedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %s: %w", groupID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision %s: %w", groupID, err)
	}
	decision.Method = model.DecisionMethod(method)
	decision.Reversed = reversed != 0

	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, counterpart_id, kind, amount_minor
		FROM allocations WHERE group_id = ? ORDER BY id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for %s: %w", groupID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var alloc model.Allocation
		var kind string
		if err := rows.Scan(&alloc.TransactionID, &alloc.CounterpartID, &kind, &alloc.AmountMinor); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		alloc.Kind = model.CounterpartKind(kind)
		decision.Allocations = append(decision.Allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &decision, nil
}

// MarkDecisionReversed flags a decision as reversed by a later one. The
// original row otherwise stays untouched; history is never rewritten.
func (s *SQLiteStorage) MarkDecisionReversed(ctx context.Context, groupID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.markDecisionReversedTx(ctx, s.db, groupID)
}

func (s *SQLiteStorage) markDecisionReversedTx(ctx context.Context, q executor, groupID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE decisions SET reversed = 1 WHERE group_id = ? AND reversed = 0
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to mark decision %s reversed: %w", groupID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reversal of %s: %w", groupID, err)
	}
	if affected == 0 {
		return fmt.Errorf("decision %s: %w", groupID, common.ErrNotFound)
	}
	return nil
}

// HasActiveDecisionFor reports whether the record participates in any
// non-reversed decision. This backs the at-most-one-active-decision
// invariant check.
func (s *SQLiteStorage) HasActiveDecisionFor(ctx context.Context, recordID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(recordID, "recordID"); err != nil {
		return false, err
	}
	return s.hasActiveDecisionForTx(ctx, s.db, recordID)
}

func (s *SQLiteStorage) hasActiveDecisionForTx(ctx context.Context, q executor, recordID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM allocations a
		JOIN decisions d ON d.group_id = a.group_id
		WHERE d.reversed = 0 AND d.reversal_of = ''
		  AND (a.transaction_id = ? OR a.counterpart_id = ?)
	`, recordID, recordID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active decisions for %s: %w", recordID, err)
	}
	return count > 0, nil
}

// SaveAuditEntry appends one audit record. The table is append-only by
// convention: nothing in the engine updates or deletes rows.
func (s *SQLiteStorage) SaveAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.saveAuditEntryTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) saveAuditEntryTx(ctx context.Context, q executor, entry *model.AuditEntry) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO audit_entries (
			group_id, tenant_id, actor, action, detail, confidence,
			amount_score, date_score, text_score, bonus_score, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.GroupID,
		entry.TenantID,
		entry.Actor,
		entry.Action,
		entry.Detail,
		entry.Confidence,
		entry.Breakdown.Amount,
		entry.Breakdown.Date,
		entry.Breakdown.Text,
		entry.Breakdown.Bonus,
		entry.RecordedAt,
	); err != nil {
		return fmt.Errorf("failed to insert audit entry for %s: %w", entry.GroupID, err)
	}
	return nil
}

// GetAuditTrail returns the full audit history of a decision group, oldest
// first.
func (s *SQLiteStorage) GetAuditTrail(ctx context.Context, groupID string) ([]model.AuditEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return nil, err
	}
	return s.getAuditTrailTx(ctx, s.db, groupID)
}

func (s *SQLiteStorage) getAuditTrailTx(ctx context.Context, q executor, groupID string) ([]model.AuditEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT group_id, tenant_id, actor, action, detail, confidence,
		       amount_score, date_score, text_score, bonus_score, recorded_at
		FROM audit_entries WHERE group_id = ? ORDER BY id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail for %s: %w", groupID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		if err := rows.Scan(
			&entry.GroupID,
			&entry.TenantID,
			&entry.Actor,
			&entry.Action,
			&entry.Detail,
			&entry.Confidence,
			&entry.Breakdown.Amount,
			&entry.Breakdown.Date,
			&entry.Breakdown.Text,
			&entry.Breakdown.Bonus,
			&entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
