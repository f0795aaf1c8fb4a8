// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers, used to tag alerts and checks.
type IDGenerator interface {
	New() string
}

// Hasher abstracts credential hashing for the service token.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Counter Store Port
// -----------------------------------------------------------------------------

// UsageRecord is one durable counter row per (resource, period).
// Count only ever grows within a period; a new period starts a fresh record.
type UsageRecord struct {
	Resource      string
	Period        string
	Count         int64
	LastUpdated   time.Time
	LastOperation string
}

// CounterStore persists usage counters. All mutation goes through Increment,
// which must be atomic at the store (never client-side read-modify-write).
type CounterStore interface {
	// Increment atomically adds delta to the counter for (resource, period),
	// creating the record if absent, and returns the post-increment record.
	Increment(ctx context.Context, resource, period string, delta int64, operation string, at time.Time) (UsageRecord, error)

	// Read returns the current record for (resource, period). A missing record
	// is not an error: it returns a zero-count record for the pair.
	Read(ctx context.Context, resource, period string) (UsageRecord, error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Datum is a single metric data point.
type Datum struct {
	Name       string
	Value      float64
	Unit       string // "Count", "Percent"
	Dimensions map[string]string
	At         time.Time
}

// MetricSink accepts time-series data points. Best effort: callers log and
// continue on error, they never fail their own work over a lost datum.
type MetricSink interface {
	Publish(ctx context.Context, d Datum) error
}

// BatchSink is implemented by sinks that can accept datums in batches.
// Buffered dispatchers probe for it and fall back to Publish per datum.
type BatchSink interface {
	MetricSink

	PublishBatch(ctx context.Context, ds []Datum) error
}

// Notification is a human-facing alert message.
type Notification struct {
	ID      string
	Subject string
	Body    string
	// Target overrides the channel's configured destination (topic ARN,
	// recipient address). Empty means use the adapter default.
	Target string
}

// Notifier delivers alerts to subscribers. At-least-once: duplicates are
// tolerable, silent loss is not.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
