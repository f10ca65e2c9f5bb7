package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the engine expects.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Records handed over by collaborators",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					counterpart TEXT NOT NULL DEFAULT '',
					currency TEXT NOT NULL DEFAULT 'EUR',
					amount INTEGER NOT NULL,
					allocated_minor INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'unmatched',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_tenant_status ON transactions(tenant_id, status)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					amount INTEGER NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					provider TEXT NOT NULL DEFAULT '',
					invoice_id TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL DEFAULT 'manual',
					status TEXT NOT NULL DEFAULT 'unmatched',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_expenses_tenant_status ON expenses(tenant_id, status)`,
				`CREATE INDEX idx_expenses_date ON expenses(date)`,

				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					total INTEGER NOT NULL,
					emission_date DATETIME NOT NULL,
					issuer TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'unmatched',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_invoices_tenant_status ON invoices(tenant_id, status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Decisions, allocations, and the append-only audit trail",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS decisions (
					group_id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					method TEXT NOT NULL,
					actor TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					reversal_of TEXT NOT NULL DEFAULT '',
					reversed INTEGER NOT NULL DEFAULT 0,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_decisions_tenant ON decisions(tenant_id)`,

				`CREATE TABLE IF NOT EXISTS allocations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					group_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					counterpart_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					amount_minor INTEGER NOT NULL,
					FOREIGN KEY (group_id) REFERENCES decisions(group_id)
				)`,
				`CREATE INDEX idx_allocations_group ON allocations(group_id)`,
				`CREATE INDEX idx_allocations_transaction ON allocations(transaction_id)`,
				`CREATE INDEX idx_allocations_counterpart ON allocations(counterpart_id)`,

				`CREATE TABLE IF NOT EXISTS audit_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					group_id TEXT NOT NULL,
					tenant_id TEXT NOT NULL,
					actor TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					detail TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					amount_score REAL NOT NULL DEFAULT 0,
					date_score REAL NOT NULL DEFAULT 0,
					text_score REAL NOT NULL DEFAULT 0,
					bonus_score REAL NOT NULL DEFAULT 0,
					recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_audit_entries_group ON audit_entries(group_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Persisted suggestions and reviewer feedback",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS suggestions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					job_id TEXT NOT NULL DEFAULT '',
					transaction_id TEXT NOT NULL,
					counterparts TEXT NOT NULL,
					amount_score REAL NOT NULL DEFAULT 0,
					date_score REAL NOT NULL DEFAULT 0,
					text_score REAL NOT NULL DEFAULT 0,
					bonus_score REAL NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					tier TEXT NOT NULL,
					explanation TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					generated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME
				)`,
				`CREATE INDEX idx_suggestions_tenant_status ON suggestions(tenant_id, status)`,
				`CREATE INDEX idx_suggestions_transaction ON suggestions(transaction_id)`,

				`CREATE TABLE IF NOT EXISTS rejections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					suggestion_id TEXT NOT NULL,
					tenant_id TEXT NOT NULL,
					actor TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					rejected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (suggestion_id) REFERENCES suggestions(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Per-job batch reports",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS job_reports (
					job_id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					processed INTEGER NOT NULL DEFAULT 0,
					auto_applied INTEGER NOT NULL DEFAULT 0,
					suggested INTEGER NOT NULL DEFAULT 0,
					skipped_stale INTEGER NOT NULL DEFAULT 0,
					unmatched INTEGER NOT NULL DEFAULT 0,
					errors TEXT NOT NULL DEFAULT '[]'
				)
			`)
			return err
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
