package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/latticectl/lattice/internal/telemetry"
)

// Sink adapts a Store into a txn.ReportSink: it accumulates the three
// metric groups a Transaction emits and logs through the configured
// Logger, matching txn.ReportSink's method set by structural typing (no
// import of internal/txn is needed here, avoiding a dependency cycle with
// any package that wires both together).
type Sink struct {
	store         Store
	transactionID string
	log           *telemetry.Logger

	resources map[string]float64
	time      map[string]float64
	changes   map[string]float64
	stampedAt time.Time
}

// NewSink returns a Sink that will persist under transactionID when
// Persist is called.
func NewSink(s Store, transactionID string, log *telemetry.Logger) *Sink {
	return &Sink{store: s, transactionID: transactionID, log: log}
}

func (k *Sink) NewMetric(name string, values map[string]float64) {
	switch name {
	case "resources":
		k.resources = values
	case "time":
		k.time = values
	case "changes":
		k.changes = values
	}
}

func (k *Sink) SetTime(t time.Time) { k.stampedAt = t }

func (k *Sink) Debug(msg string) {
	if k.log != nil {
		k.log.WithTransactionID(k.transactionID).Debug(msg)
	}
}
func (k *Sink) Info(msg string) {
	if k.log != nil {
		k.log.WithTransactionID(k.transactionID).Info(msg)
	}
}
func (k *Sink) Notice(msg string) {
	if k.log != nil {
		k.log.WithTransactionID(k.transactionID).Notice(msg)
	}
}
func (k *Sink) Warning(msg string) {
	if k.log != nil {
		k.log.WithTransactionID(k.transactionID).Warn(msg)
	}
}
func (k *Sink) Err(msg string) {
	if k.log != nil {
		k.log.WithTransactionID(k.transactionID).Error(msg)
	}
}

// Persist writes the accumulated report to the store. Call it once after
// Transaction.Evaluate returns; the engine itself never reaches into
// storage.
func (k *Sink) Persist(ctx context.Context) error {
	resourcesJSON, err := json.Marshal(k.resources)
	if err != nil {
		return fmt.Errorf("store: failed to marshal resources metric: %w", err)
	}
	timeJSON, err := json.Marshal(k.time)
	if err != nil {
		return fmt.Errorf("store: failed to marshal time metric: %w", err)
	}
	changesJSON, err := json.Marshal(k.changes)
	if err != nil {
		return fmt.Errorf("store: failed to marshal changes metric: %w", err)
	}

	stampedAt := k.stampedAt
	if stampedAt.IsZero() {
		stampedAt = time.Now()
	}

	return k.store.SaveReport(ctx, &ReportRecord{
		TransactionID: k.transactionID,
		ResourcesJSON: string(resourcesJSON),
		TimeJSON:      string(timeJSON),
		ChangesJSON:   string(changesJSON),
		StampedAt:     stampedAt,
	})
}
