package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lattice.db")
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &TransactionRecord{
		ID:        "tx-1",
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.CreateTransaction(ctx, rec); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %v, want %v", got.Status, StatusRunning)
	}

	if err := s.UpdateTransactionStatus(ctx, "tx-1", StatusCompleted, nil); err != nil {
		t.Fatalf("UpdateTransactionStatus: %v", err)
	}
	got, err = s.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction after update: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status after update = %v, want %v", got.Status, StatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set after UpdateTransactionStatus")
	}
}

func TestAppendAndListChangesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, &TransactionRecord{ID: "tx-2", Status: StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := s.AppendChange(ctx, &ChangeRecord{
		TransactionID: "tx-2",
		Resource:      "file[a]",
		Property:      "content",
		From:          "old",
		To:            "new",
		Changed:       true,
		RecordedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("AppendChange: %v", err)
	}

	if err := s.AppendEvent(ctx, &EventRecord{
		TransactionID: "tx-2",
		Kind:          "applied",
		Source:        "file[a]",
		Message:       "content changed",
		RecordedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	changes, err := s.ListChanges(ctx, "tx-2")
	if err != nil {
		t.Fatalf("ListChanges: %v", err)
	}
	if len(changes) != 1 || changes[0].Resource != "file[a]" {
		t.Fatalf("ListChanges = %+v, want one change on file[a]", changes)
	}

	events, err := s.ListEvents(ctx, "tx-2")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "applied" {
		t.Fatalf("ListEvents = %+v, want one applied event", events)
	}
}

func TestSinkPersistsReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, &TransactionRecord{ID: "tx-3", Status: StatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	sink := NewSink(s, "tx-3", nil)
	sink.NewMetric("resources", map[string]float64{"applied": 2, "failed": 0})
	sink.NewMetric("time", map[string]float64{"total": 1.5})
	sink.NewMetric("changes", map[string]float64{"total": 2})
	sink.SetTime(time.Now())

	if err := sink.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	rec, err := s.GetReport(ctx, "tx-3")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rec.ResourcesJSON == "" || rec.TimeJSON == "" || rec.ChangesJSON == "" {
		t.Errorf("expected all three metric groups to be persisted, got %+v", rec)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
