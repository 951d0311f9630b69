package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store over a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite connection tuning.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore returns a store bound to cfg.Path. Call Init then Migrate
// before using it.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection with WAL mode and foreign keys on.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("store: failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("store: failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies every pending embedded migration.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store: database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, rec *TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Status, rec.StartedAt, rec.CompletedAt, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("store: failed to create transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("store: failed to update transaction %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, started_at, completed_at, error
		FROM transactions WHERE id = ?`, id,
	)
	rec := &TransactionRecord{}
	if err := row.Scan(&rec.ID, &rec.Status, &rec.StartedAt, &rec.CompletedAt, &rec.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: transaction %s not found", id)
		}
		return nil, fmt.Errorf("store: failed to get transaction %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, limit, offset int) ([]*TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, started_at, completed_at, error
		FROM transactions ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*TransactionRecord
	for rows.Next() {
		rec := &TransactionRecord{}
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.StartedAt, &rec.CompletedAt, &rec.Error); err != nil {
			return nil, fmt.Errorf("store: failed to scan transaction row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendChange(ctx context.Context, rec *ChangeRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (transaction_id, resource, property, from_value, to_value, changed, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TransactionID, rec.Resource, rec.Property, rec.From, rec.To, rec.Changed, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to append change: %w", err)
	}
	id, err := result.LastInsertId()
	if err == nil {
		rec.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListChanges(ctx context.Context, transactionID string) ([]*ChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, resource, property, from_value, to_value, changed, recorded_at
		FROM changes WHERE transaction_id = ? ORDER BY id ASC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list changes: %w", err)
	}
	defer rows.Close()

	var out []*ChangeRecord
	for rows.Next() {
		rec := &ChangeRecord{}
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Resource, &rec.Property, &rec.From, &rec.To, &rec.Changed, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan change row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, rec *EventRecord) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (transaction_id, kind, source, message, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.TransactionID, rec.Kind, rec.Source, rec.Message, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to append event: %w", err)
	}
	id, err := result.LastInsertId()
	if err == nil {
		rec.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, transactionID string) ([]*EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, kind, source, message, recorded_at
		FROM events WHERE transaction_id = ? ORDER BY id ASC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		rec := &EventRecord{}
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Kind, &rec.Source, &rec.Message, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan event row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (transaction_id, resources_json, time_json, changes_json, stamped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			resources_json = excluded.resources_json,
			time_json = excluded.time_json,
			changes_json = excluded.changes_json,
			stamped_at = excluded.stamped_at`,
		rec.TransactionID, rec.ResourcesJSON, rec.TimeJSON, rec.ChangesJSON, rec.StampedAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to save report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, transactionID string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, resources_json, time_json, changes_json, stamped_at
		FROM reports WHERE transaction_id = ?`, transactionID,
	)
	rec := &ReportRecord{}
	if err := row.Scan(&rec.TransactionID, &rec.ResourcesJSON, &rec.TimeJSON, &rec.ChangesJSON, &rec.StampedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: report for transaction %s not found", transactionID)
		}
		return nil, fmt.Errorf("store: failed to get report for %s: %w", transactionID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store: database not initialized")
	}
	return s.db.PingContext(ctx)
}
