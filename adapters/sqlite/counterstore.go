package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/quotamon/ports"
)

// CounterStore implements ports.CounterStore using SQLite, so counters
// survive process restarts.
type CounterStore struct {
	db *DB
}

// NewCounterStore creates a new SQLite counter store.
func NewCounterStore(db *DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment atomically adds delta to the counter for (resource, period).
// The upsert runs inside the engine, so concurrent workers never lose an
// increment; the post-increment record is read back afterwards.
func (s *CounterStore) Increment(ctx context.Context, resource, period string, delta int64, operation string, at time.Time) (ports.UsageRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (resource, period, count, last_updated, last_operation)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource, period) DO UPDATE SET
			count = count + excluded.count,
			last_updated = excluded.last_updated,
			last_operation = CASE
				WHEN excluded.last_operation != '' THEN excluded.last_operation
				ELSE last_operation
			END
	`, resource, period, delta, at.UTC(), operation)
	if err != nil {
		return ports.UsageRecord{}, err
	}

	return s.Read(ctx, resource, period)
}

// Read returns the record for (resource, period), or a zero-count record
// when no row exists yet.
func (s *CounterStore) Read(ctx context.Context, resource, period string) (ports.UsageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT resource, period, count, last_updated, last_operation
		FROM usage_counters
		WHERE resource = ? AND period = ?
	`, resource, period)

	var rec ports.UsageRecord
	err := row.Scan(
		&rec.Resource,
		&rec.Period,
		&rec.Count,
		&rec.LastUpdated,
		&rec.LastOperation,
	)
	if err == sql.ErrNoRows {
		return ports.UsageRecord{Resource: resource, Period: period}, nil
	}
	if err != nil {
		return ports.UsageRecord{}, err
	}

	return rec, nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
