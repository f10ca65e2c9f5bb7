package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
)

// SaveJobReport persists the summary of one batch run.
func (s *SQLiteStorage) SaveJobReport(ctx context.Context, report *service.JobReport) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.saveJobReportTx(ctx, s.db, report)
}

func (s *SQLiteStorage) saveJobReportTx(ctx context.Context, q executor, report *service.JobReport) error {
	errorsJSON, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO job_reports (
			job_id, tenant_id, started_at, finished_at, processed,
			auto_applied, suggested, skipped_stale, unmatched, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.JobID,
		report.TenantID,
		report.StartedAt,
		report.FinishedAt,
		report.Processed,
		report.AutoApplied,
		report.Suggested,
		report.SkippedStale,
		report.Unmatched,
		string(errorsJSON),
	); err != nil {
		return fmt.Errorf("failed to insert job report %s: %w", report.JobID, err)
	}
	return nil
}

// GetTenantStats aggregates reconciliation progress for a tenant.
func (s *SQLiteStorage) GetTenantStats(ctx context.Context, tenantID string) (*service.TenantStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	return s.getTenantStatsTx(ctx, s.db, tenantID)
}

func (s *SQLiteStorage) getTenantStatsTx(ctx context.Context, q executor, tenantID string) (*service.TenantStats, error) {
	stats := &service.TenantStats{TenantID: tenantID}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM transactions WHERE tenant_id = ?
	`, string(model.StatusMatched), string(model.StatusSplit),
		string(model.StatusUnmatched), tenantID,
	).Scan(&stats.Total, &stats.Matched, &stats.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN method = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN method = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(AVG(CASE WHEN method = ? THEN confidence END), 0),
		       COALESCE(AVG(CASE WHEN method = ? THEN confidence END), 0)
		FROM decisions
		WHERE tenant_id = ? AND reversed = 0 AND reversal_of = ''
	`, string(model.MethodAuto), string(model.MethodManual),
		string(model.MethodAuto), string(model.MethodManual), tenantID,
	).Scan(&stats.AutoMatched, &stats.ManualMatched,
		&stats.AvgConfidence, &stats.AvgConfidenceAuto, &stats.AvgConfidenceManual)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate decisions: %w", err)
	}

	return stats, nil
}
