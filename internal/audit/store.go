package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dlgen/internal/services"
)

// Run is one recorded generation run.
type Run struct {
	ID           int64
	Identity     string
	LetterType   string
	OutputFormat string
	Status       string
	TotalRecords int
	ValidRecords int
	Generated    int
	Converted    int
	Failed       int
	Areas        string
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Account is one letter recipient row attached to a run.
type Account struct {
	RunID        int64
	Area         string
	DLCode       string
	AccountNo    string
	CustomerName string
	Amount       string
}

// Store persists the audit trail in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the audit database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS generation_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT NOT NULL,
	letter_type TEXT NOT NULL,
	output_format TEXT NOT NULL,
	status TEXT NOT NULL,
	total_records INTEGER NOT NULL,
	valid_records INTEGER NOT NULL,
	generated INTEGER NOT NULL,
	converted INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	areas TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_identity ON generation_runs(identity, started_at);
CREATE TABLE IF NOT EXISTS run_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES generation_runs(id) ON DELETE CASCADE,
	area TEXT NOT NULL,
	dl_code TEXT NOT NULL,
	account_no TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_accounts_run ON run_accounts(run_id);`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// RecordRun inserts a run and its account rows atomically, returning the new
// run ID.
func (s *Store) RecordRun(ctx context.Context, run Run, accounts []Account) (int64, error) {
	var runID int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(ctx, `
INSERT INTO generation_runs
	(identity, letter_type, output_format, status, total_records, valid_records,
	 generated, converted, failed, areas, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.Identity, run.LetterType, run.OutputFormat, run.Status,
			run.TotalRecords, run.ValidRecords, run.Generated, run.Converted,
			run.Failed, run.Areas, run.Error,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		runID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for _, account := range accounts {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_accounts (run_id, area, dl_code, account_no, customer_name, amount)
VALUES (?, ?, ?, ?, ?, ?)`,
				runID, account.Area, account.DLCode, account.AccountNo,
				account.CustomerName, account.Amount); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return runID, nil
}

// ListRuns returns runs newest first. When identity is empty all identities
// are included; limit caps the page, offset skips past earlier pages.
func (s *Store) ListRuns(ctx context.Context, identity string, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, identity, letter_type, output_format, status, total_records,
	valid_records, generated, converted, failed, areas, error,
	started_at, finished_at
FROM generation_runs`
	args := []any{}
	if identity != "" {
		query += " WHERE identity = ?"
		args = append(args, identity)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var runs []Run
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		runs = runs[:0]
		for rows.Next() {
			var run Run
			var started, finished string
			if err := rows.Scan(&run.ID, &run.Identity, &run.LetterType,
				&run.OutputFormat, &run.Status, &run.TotalRecords,
				&run.ValidRecords, &run.Generated, &run.Converted, &run.Failed,
				&run.Areas, &run.Error, &started, &finished); err != nil {
				return err
			}
			run.StartedAt, _ = time.Parse(time.RFC3339, started)
			run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RunAccounts returns the account rows recorded for one run.
func (s *Store) RunAccounts(ctx context.Context, runID int64) ([]Account, error) {
	var accounts []Account
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
SELECT run_id, area, dl_code, account_no, customer_name, amount
FROM run_accounts WHERE run_id = ? ORDER BY id`, runID)
		if err != nil {
			return err
		}
		defer rows.Close()

		accounts = accounts[:0]
		for rows.Next() {
			var account Account
			if err := rows.Scan(&account.RunID, &account.Area, &account.DLCode,
				&account.AccountNo, &account.CustomerName, &account.Amount); err != nil {
				return err
			}
			accounts = append(accounts, account)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load run accounts: %w", err)
	}
	return accounts, nil
}

// Run fetches one run by ID.
func (s *Store) Run(ctx context.Context, runID int64) (Run, error) {
	var run Run
	var started, finished string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
SELECT id, identity, letter_type, output_format, status, total_records,
	valid_records, generated, converted, failed, areas, error,
	started_at, finished_at
FROM generation_runs WHERE id = ?`, runID).Scan(
			&run.ID, &run.Identity, &run.LetterType, &run.OutputFormat,
			&run.Status, &run.TotalRecords, &run.ValidRecords, &run.Generated,
			&run.Converted, &run.Failed, &run.Areas, &run.Error,
			&started, &finished)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, services.Wrap(services.ErrNotFound, "audit", "",
			fmt.Sprintf("run %d not found", runID), nil)
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, started)
	run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return run, nil
}
