package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
)

// SaveExpenses saves normalized expense records.
func (s *SQLiteStorage) SaveExpenses(ctx context.Context, expenses []model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpenses(expenses); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveExpensesTx(ctx, tx, expenses); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveExpensesTx(ctx context.Context, q executor, expenses []model.Expense) error {
	const query = `
		INSERT OR IGNORE INTO expenses (
			id, tenant_id, amount, date, description, provider,
			invoice_id, source, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range expenses {
		exp := &expenses[i]
		if exp.Status == "" {
			exp.Status = model.StatusUnmatched
		}
		if exp.Source == "" {
			exp.Source = model.ExpenseSourceManual
		}

		if _, err := q.ExecContext(ctx, query,
			exp.ID,
			exp.TenantID,
			exp.Amount,
			exp.Date,
			exp.Description,
			exp.Provider,
			exp.InvoiceID,
			string(exp.Source),
			string(exp.Status),
		); err != nil {
			return fmt.Errorf("failed to insert expense %s: %w", exp.ID, err)
		}
	}
	return nil
}

// GetExpenseByID retrieves a single expense.
func (s *SQLiteStorage) GetExpenseByID(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getExpenseByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getExpenseByIDTx(ctx context.Context, q executor, id string) (*model.Expense, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, amount, date, description, provider,
		       invoice_id, source, status, created_at
		FROM expenses WHERE id = ?
	`, id)

	exp, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense %s: %w", id, err)
	}
	return exp, nil
}

// GetRecentExpenses returns the tenant's matchable expenses dated at or
// after since, newest first. This is the duplicate-detection window.
func (s *SQLiteStorage) GetRecentExpenses(ctx context.Context, tenantID string, since time.Time) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	return s.getRecentExpensesTx(ctx, s.db, tenantID, since)
}

func (s *SQLiteStorage) getRecentExpensesTx(ctx context.Context, q executor, tenantID string, since time.Time) ([]model.Expense, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, amount, date, description, provider,
		       invoice_id, source, status, created_at
		FROM expenses
		WHERE tenant_id = ? AND date >= ? AND status IN (?, ?)
		ORDER BY date DESC, id
	`, tenantID, since, string(model.StatusUnmatched), string(model.StatusAdvance))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

// SaveInvoices saves normalized invoice records.
func (s *SQLiteStorage) SaveInvoices(ctx context.Context, invoices []model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveInvoicesTx(ctx, tx, invoices); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveInvoicesTx(ctx context.Context, q executor, invoices []model.Invoice) error {
	const query = `
		INSERT OR IGNORE INTO invoices (
			id, tenant_id, total, emission_date, issuer, description, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == "" {
			inv.Status = model.StatusUnmatched
		}

		if _, err := q.ExecContext(ctx, query,
			inv.ID,
			inv.TenantID,
			inv.Total,
			inv.EmissionDate,
			inv.Issuer,
			inv.Description,
			string(inv.Status),
		); err != nil {
			return fmt.Errorf("failed to insert invoice %s: %w", inv.ID, err)
		}
	}
	return nil
}

// GetInvoiceByID retrieves a single invoice.
func (s *SQLiteStorage) GetInvoiceByID(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getInvoiceByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getInvoiceByIDTx(ctx context.Context, q executor, id string) (*model.Invoice, error) {
	var inv model.Invoice
	var status string
	err := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, total, emission_date, issuer, description, status
		FROM invoices WHERE id = ?
	`, id).Scan(&inv.ID, &inv.TenantID, &inv.Total, &inv.EmissionDate, &inv.Issuer, &inv.Description, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	inv.Status = model.RecordStatus(status)
	return &inv, nil
}

// GetMatchableCounterparts returns every unmatched expense and invoice for
// the tenant in the common counterpart shape the matching pipeline consumes.
func (s *SQLiteStorage) GetMatchableCounterparts(ctx context.Context, tenantID string) ([]model.Counterpart, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	return s.getMatchableCounterpartsTx(ctx, s.db, tenantID)
}

func (s *SQLiteStorage) getMatchableCounterpartsTx(ctx context.Context, q executor, tenantID string) ([]model.Counterpart, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, amount, date, description, provider, status, 'expense' AS kind
		FROM expenses
		WHERE tenant_id = ? AND status IN (?, ?)
		UNION ALL
		SELECT id, tenant_id, total AS amount, emission_date AS date,
		       description, issuer AS provider, status, 'invoice' AS kind
		FROM invoices
		WHERE tenant_id = ? AND status IN (?, ?)
		ORDER BY date, id
	`, tenantID, string(model.StatusUnmatched), string(model.StatusAdvance),
		tenantID, string(model.StatusUnmatched), string(model.StatusAdvance))
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Counterpart
	for rows.Next() {
		var cp model.Counterpart
		var status, kind string
		if err := rows.Scan(&cp.ID, &cp.TenantID, &cp.Amount, &cp.Date,
			&cp.Description, &cp.Provider, &status, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan counterpart: %w", err)
		}
		cp.Status = model.RecordStatus(status)
		cp.Kind = model.CounterpartKind(kind)
		out = append(out, cp)
	}
	return out, rows.Err()
}

// UpdateCounterpartStatus transitions an expense or invoice status.
func (s *SQLiteStorage) UpdateCounterpartStatus(ctx context.Context, kind model.CounterpartKind, id string, status model.RecordStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.updateCounterpartStatusTx(ctx, s.db, kind, id, status)
}

func (s *SQLiteStorage) updateCounterpartStatusTx(ctx context.Context, q executor, kind model.CounterpartKind, id string, status model.RecordStatus) error {
	var query string
	switch kind {
	case model.KindExpense:
		query = "UPDATE expenses SET status = ? WHERE id = ?"
	case model.KindInvoice:
		query = "UPDATE invoices SET status = ? WHERE id = ?"
	default:
		return fmt.Errorf("unknown counterpart kind %q", kind)
	}

	res, err := q.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of %s %s: %w", kind, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return nil
}

func scanExpense(sc scanner) (*model.Expense, error) {
	var exp model.Expense
	var source, status string
	if err := sc.Scan(
		&exp.ID,
		&exp.TenantID,
		&exp.Amount,
		&exp.Date,
		&exp.Description,
		&exp.Provider,
		&exp.InvoiceID,
		&source,
		&status,
		&exp.CreatedAt,
	); err != nil {
		return nil, err
	}
	exp.Source = model.ExpenseSource(source)
	exp.Status = model.RecordStatus(status)
	return &exp, nil
}
