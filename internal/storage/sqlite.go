// Package storage implements the engine's persistence layer on SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// executor abstracts *sql.DB and *sql.Tx so every query is written once and
// runs either standalone or inside a ledger transaction.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{tx: tx, storage: s}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTransaction) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return t.storage.saveTransactionsTx(ctx, t.tx, transactions)
}

func (t *sqliteTransaction) SaveExpenses(ctx context.Context, expenses []model.Expense) error {
	if err := validateExpenses(expenses); err != nil {
		return err
	}
	return t.storage.saveExpensesTx(ctx, t.tx, expenses)
}

func (t *sqliteTransaction) SaveInvoices(ctx context.Context, invoices []model.Invoice) error {
	return t.storage.saveInvoicesTx(ctx, t.tx, invoices)
}

func (t *sqliteTransaction) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	return t.storage.getTransactionByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetExpenseByID(ctx context.Context, id string) (*model.Expense, error) {
	return t.storage.getExpenseByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetInvoiceByID(ctx context.Context, id string) (*model.Invoice, error) {
	return t.storage.getInvoiceByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetUnmatchedTransactions(ctx context.Context, tenantID string, window service.DateRange) ([]model.Transaction, error) {
	return t.storage.getUnmatchedTransactionsTx(ctx, t.tx, tenantID, window)
}

func (t *sqliteTransaction) GetMatchableCounterparts(ctx context.Context, tenantID string) ([]model.Counterpart, error) {
	return t.storage.getMatchableCounterpartsTx(ctx, t.tx, tenantID)
}

func (t *sqliteTransaction) GetRecentExpenses(ctx context.Context, tenantID string, since time.Time) ([]model.Expense, error) {
	return t.storage.getRecentExpensesTx(ctx, t.tx, tenantID, since)
}

func (t *sqliteTransaction) UpdateTransactionStatus(ctx context.Context, id string, status model.RecordStatus, allocatedMinor int64) error {
	return t.storage.updateTransactionStatusTx(ctx, t.tx, id, status, allocatedMinor)
}

func (t *sqliteTransaction) UpdateCounterpartStatus(ctx context.Context, kind model.CounterpartKind, id string, status model.RecordStatus) error {
	return t.storage.updateCounterpartStatusTx(ctx, t.tx, kind, id, status)
}

func (t *sqliteTransaction) SaveSuggestion(ctx context.Context, suggestion *model.Suggestion) error {
	if err := validateSuggestion(suggestion); err != nil {
		return err
	}
	return t.storage.saveSuggestionTx(ctx, t.tx, suggestion)
}

func (t *sqliteTransaction) GetSuggestionByID(ctx context.Context, id string) (*model.Suggestion, error) {
	return t.storage.getSuggestionByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetPendingSuggestions(ctx context.Context, tenantID string, minConfidence float64) ([]model.Suggestion, error) {
	return t.storage.getPendingSuggestionsTx(ctx, t.tx, tenantID, minConfidence)
}

func (t *sqliteTransaction) ResolveSuggestion(ctx context.Context, id string, status model.SuggestionStatus) error {
	return t.storage.resolveSuggestionTx(ctx, t.tx, id, status)
}

func (t *sqliteTransaction) SaveRejection(ctx context.Context, rejection *model.Rejection) error {
	return t.storage.saveRejectionTx(ctx, t.tx, rejection)
}

func (t *sqliteTransaction) SaveDecision(ctx context.Context, decision *model.MatchDecision) error {
	if err := validateDecision(decision); err != nil {
		return err
	}
	return t.storage.saveDecisionTx(ctx, t.tx, decision)
}

func (t *sqliteTransaction) GetDecisionByGroupID(ctx context.Context, groupID string) (*model.MatchDecision, error) {
	return t.storage.getDecisionByGroupIDTx(ctx, t.tx, groupID)
}

func (t *sqliteTransaction) MarkDecisionReversed(ctx context.Context, groupID string) error {
	return t.storage.markDecisionReversedTx(ctx, t.tx, groupID)
}

func (t *sqliteTransaction) HasActiveDecisionFor(ctx context.Context, recordID string) (bool, error) {
	return t.storage.hasActiveDecisionForTx(ctx, t.tx, recordID)
}

func (t *sqliteTransaction) SaveAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return t.storage.saveAuditEntryTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) GetAuditTrail(ctx context.Context, groupID string) ([]model.AuditEntry, error) {
	return t.storage.getAuditTrailTx(ctx, t.tx, groupID)
}

func (t *sqliteTransaction) SaveJobReport(ctx context.Context, report *service.JobReport) error {
	return t.storage.saveJobReportTx(ctx, t.tx, report)
}

func (t *sqliteTransaction) GetTenantStats(ctx context.Context, tenantID string) (*service.TenantStats, error) {
	return t.storage.getTenantStatsTx(ctx, t.tx, tenantID)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
