package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
)

// SaveSuggestion persists a medium/low-tier candidate for manual review.
func (s *SQLiteStorage) SaveSuggestion(ctx context.Context, suggestion *model.Suggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSuggestion(suggestion); err != nil {
		return err
	}
	return s.saveSuggestionTx(ctx, s.db, suggestion)
}

func (s *SQLiteStorage) saveSuggestionTx(ctx context.Context, q executor, suggestion *model.Suggestion) error {
	counterparts, err := json.Marshal(suggestion.Candidate.Counterparts)
	if err != nil {
		return fmt.Errorf("failed to marshal counterparts: %w", err)
	}

	c := &suggestion.Candidate
	if _, err := q.ExecContext(ctx, `
		INSERT INTO suggestions (
			id, tenant_id, job_id, transaction_id, counterparts,
			amount_score, date_score, text_score, bonus_score,
			confidence, tier, explanation, status, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		suggestion.ID,
		suggestion.TenantID,
		suggestion.JobID,
		c.TransactionID,
		string(counterparts),
		c.Breakdown.Amount,
		c.Breakdown.Date,
		c.Breakdown.Text,
		c.Breakdown.Bonus,
		c.Confidence,
		string(c.Tier),
		c.Explanation,
		string(suggestion.Status),
		suggestion.GeneratedAt,
	); err != nil {
		return fmt.Errorf("failed to insert suggestion %s: %w", suggestion.ID, err)
	}
	return nil
}

// GetSuggestionByID retrieves a persisted suggestion.
func (s *SQLiteStorage) GetSuggestionByID(ctx context.Context, id string) (*model.Suggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getSuggestionByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getSuggestionByIDTx(ctx context.Context, q executor, id string) (*model.Suggestion, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, job_id, transaction_id, counterparts,
		       amount_score, date_score, text_score, bonus_score,
		       confidence, tier, explanation, status, generated_at, resolved_at
		FROM suggestions WHERE id = ?
	`, id)

	suggestion, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion %s: %w", id, err)
	}
	return suggestion, nil
}

// GetPendingSuggestions returns the tenant's unresolved suggestions at or
// above the confidence threshold, best first.
func (s *SQLiteStorage) GetPendingSuggestions(ctx context.Context, tenantID string, minConfidence float64) ([]model.Suggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	return s.getPendingSuggestionsTx(ctx, s.db, tenantID, minConfidence)
}

func (s *SQLiteStorage) getPendingSuggestionsTx(ctx context.Context, q executor, tenantID string, minConfidence float64) ([]model.Suggestion, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, job_id, transaction_id, counterparts,
		       amount_score, date_score, text_score, bonus_score,
		       confidence, tier, explanation, status, generated_at, resolved_at
		FROM suggestions
		WHERE tenant_id = ? AND status = ? AND confidence >= ?
		ORDER BY confidence DESC, generated_at, id
	`, tenantID, string(model.SuggestionPending), minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Suggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, *suggestion)
	}
	return out, rows.Err()
}

// ResolveSuggestion finalizes a pending suggestion.
func (s *SQLiteStorage) ResolveSuggestion(ctx context.Context, id string, status model.SuggestionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.resolveSuggestionTx(ctx, s.db, id, status)
}

func (s *SQLiteStorage) resolveSuggestionTx(ctx context.Context, q executor, id string, status model.SuggestionStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE suggestions SET status = ?, resolved_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve suggestion %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolution of suggestion %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("suggestion %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// SaveRejection persists reviewer feedback on a declined suggestion.
func (s *SQLiteStorage) SaveRejection(ctx context.Context, rejection *model.Rejection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.saveRejectionTx(ctx, s.db, rejection)
}

func (s *SQLiteStorage) saveRejectionTx(ctx context.Context, q executor, rejection *model.Rejection) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO rejections (suggestion_id, tenant_id, actor, reason, rejected_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		rejection.SuggestionID,
		rejection.TenantID,
		rejection.Actor,
		rejection.Reason,
		rejection.RejectedAt,
	); err != nil {
		return fmt.Errorf("failed to insert rejection for %s: %w", rejection.SuggestionID, err)
	}
	return nil
}

func scanSuggestion(sc scanner) (*model.Suggestion, error) {
	var suggestion model.Suggestion
	var counterparts, tier, status string
	var resolvedAt sql.NullTime

	c := &suggestion.Candidate
	if err := sc.Scan(
		&suggestion.ID,
		&suggestion.TenantID,
		&suggestion.JobID,
		&c.TransactionID,
		&counterparts,
		&c.Breakdown.Amount,
		&c.Breakdown.Date,
		&c.Breakdown.Text,
		&c.Breakdown.Bonus,
		&c.Confidence,
		&tier,
		&c.Explanation,
		&status,
		&suggestion.GeneratedAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(counterparts), &c.Counterparts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counterparts: %w", err)
	}

	c.ID = suggestion.ID
	c.TenantID = suggestion.TenantID
	c.Tier = model.ConfidenceTier(tier)
	c.GeneratedAt = suggestion.GeneratedAt
	suggestion.Status = model.SuggestionStatus(status)
	if resolvedAt.Valid {
		suggestion.ResolvedAt = &resolvedAt.Time
	}
	return &suggestion, nil
}
