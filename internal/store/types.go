package store

import (
	"context"
	"time"
)

// TransactionStatus mirrors the lifecycle a persisted transaction moves
// through.
type TransactionStatus string

const (
	StatusRunning   TransactionStatus = "running"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusRolledBack TransactionStatus = "rolled_back"
)

// TransactionRecord is the persisted header row for one Transaction.
type TransactionRecord struct {
	ID          string
	Status      TransactionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       *string
}

// ChangeRecord is the persisted form of a change.Change: From/To/Changed
// are stored as their printed representation, since the live ApplyFuncs
// are never meant to survive a round trip through storage.
type ChangeRecord struct {
	ID            int64
	TransactionID string
	Resource      string
	Property      string
	From          string
	To            string
	Changed       bool
	RecordedAt    time.Time
}

// EventRecord is the persisted form of a change.Event.
type EventRecord struct {
	ID            int64
	TransactionID string
	Kind          string
	Source        string
	Message       string
	RecordedAt    time.Time
}

// ReportRecord is the persisted form of a txn.Report, with each metric
// group flattened to a JSON blob rather than three more tables — the
// report is read back whole, never queried by individual metric key.
type ReportRecord struct {
	TransactionID  string
	ResourcesJSON  string
	TimeJSON       string
	ChangesJSON    string
	StampedAt      time.Time
}

// Store is the persistence contract the CLI and any report sink adapters
// depend on.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateTransaction(ctx context.Context, rec *TransactionRecord) error
	UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus, errMsg *string) error
	GetTransaction(ctx context.Context, id string) (*TransactionRecord, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]*TransactionRecord, error)

	AppendChange(ctx context.Context, rec *ChangeRecord) error
	ListChanges(ctx context.Context, transactionID string) ([]*ChangeRecord, error)

	AppendEvent(ctx context.Context, rec *EventRecord) error
	ListEvents(ctx context.Context, transactionID string) ([]*EventRecord, error)

	SaveReport(ctx context.Context, rec *ReportRecord) error
	GetReport(ctx context.Context, transactionID string) (*ReportRecord, error)

	HealthCheck(ctx context.Context) error
}
