package audit

import (
	"context"

	"bouncer/housekeeper"
)

const cyclesTable = "housekeeping_cycles"

// Sink persists one row per Housekeeper cycle via InsertBuilder,
// generalizing the teacher's hardcoded `users` insert
// (mysql/insert_test.go) into the audit schema this package owns.
// Table layout (ts, queue_size, store_size, queue_enabled,
// store_capacity, removed_queue, removed_store, moved, duration_ms)
// is a fixed positional VALUES row, matching the teacher's own
// column-less INSERT style.
type Sink struct {
	store *Store
}

// NewSink builds a Sink writing through store.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

// RecordCycle implements housekeeper.Sink.
func (s *Sink) RecordCycle(ctx context.Context, snap housekeeper.Snapshot) error {
	row := InsertCond{Arg: []any{
		snap.Timestamp.UTC(),
		snap.QueueSize,
		snap.StoreSize,
		snap.QueueEnabled,
		snap.StoreCapacity,
		snap.RemovedQueue,
		snap.RemovedStore,
		snap.Moved,
		snap.Duration.Milliseconds(),
	}}
	_, err := InsertFrom(cyclesTable).Values(&row).Exec(ctx, s.store.db)
	return err
}
