package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
)

// SaveTransactions saves normalized bank transactions. Records whose hash is
// already present are skipped so re-ingestion is idempotent.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveTransactionsTx(ctx, tx, transactions); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, q executor, transactions []model.Transaction) error {
	const query = `
		INSERT OR IGNORE INTO transactions (
			id, tenant_id, hash, date, description, counterpart,
			currency, amount, allocated_minor, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range transactions {
		txn := &transactions[i]
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		if txn.Status == "" {
			txn.Status = model.StatusUnmatched
		}

		if _, err := q.ExecContext(ctx, query,
			txn.ID,
			txn.TenantID,
			txn.Hash,
			txn.Date,
			txn.Description,
			txn.Counterpart,
			txn.Currency,
			txn.Amount,
			txn.AllocatedMinor,
			string(txn.Status),
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getTransactionByIDTx(ctx context.Context, q executor, id string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, hash, date, description, counterpart,
		       currency, amount, allocated_minor, status
		FROM transactions WHERE id = ?
	`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

// GetUnmatchedTransactions returns the tenant's unmatched transactions
// within the window, oldest first. This is the immutable snapshot a batch
// job works from.
func (s *SQLiteStorage) GetUnmatchedTransactions(ctx context.Context, tenantID string, window service.DateRange) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	return s.getUnmatchedTransactionsTx(ctx, s.db, tenantID, window)
}

func (s *SQLiteStorage) getUnmatchedTransactionsTx(ctx context.Context, q executor, tenantID string, window service.DateRange) ([]model.Transaction, error) {
	query := `
		SELECT id, tenant_id, hash, date, description, counterpart,
		       currency, amount, allocated_minor, status
		FROM transactions
		WHERE tenant_id = ? AND status = ?
	`
	args := []any{tenantID, string(model.StatusUnmatched)}

	if !window.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, window.Start)
	}
	if !window.End.IsZero() {
		query += " AND date <= ?"
		args = append(args, window.End)
	}
	query += " ORDER BY date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *txn)
	}
	return out, rows.Err()
}

// UpdateTransactionStatus transitions a transaction's status and records its
// allocated amount.
func (s *SQLiteStorage) UpdateTransactionStatus(ctx context.Context, id string, status model.RecordStatus, allocatedMinor int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.updateTransactionStatusTx(ctx, s.db, id, status, allocatedMinor)
}

func (s *SQLiteStorage) updateTransactionStatusTx(ctx context.Context, q executor, id string, status model.RecordStatus, allocatedMinor int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE transactions SET status = ?, allocated_minor = ? WHERE id = ?
	`, string(status), allocatedMinor, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of transaction %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(sc scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var status string
	if err := sc.Scan(
		&txn.ID,
		&txn.TenantID,
		&txn.Hash,
		&txn.Date,
		&txn.Description,
		&txn.Counterpart,
		&txn.Currency,
		&txn.Amount,
		&txn.AllocatedMinor,
		&status,
	); err != nil {
		return nil, err
	}
	txn.Status = model.RecordStatus(status)
	return &txn, nil
}
