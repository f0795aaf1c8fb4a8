// Package redis implements the counter store on Redis, for fleets where many
// worker processes share one counter and a relational store is not available.
// The count lives in a hash field advanced with HINCRBY, which is atomic at
// the server.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/quotamon/ports"
)

// DefaultKeyPrefix namespaces counter keys in a shared Redis.
const DefaultKeyPrefix = "quotamon:usage"

// Options configures the Redis counter store.
type Options struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces keys; defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires records after the given duration. Zero keeps them forever,
	// leaving retention to an external policy.
	TTL time.Duration
}

// CounterStore wraps a Redis client as a ports.CounterStore.
type CounterStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCounterStore connects a new client with the given options.
func NewCounterStore(opts Options) *CounterStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &CounterStore{client: client, prefix: prefix, ttl: opts.TTL}
}

// NewFromClient wraps an existing client (for testing). The store takes
// ownership and closes it on Close.
func NewFromClient(client *redis.Client, prefix string, ttl time.Duration) *CounterStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CounterStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *CounterStore) key(resource, period string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, resource, period)
}

// Increment atomically adds delta via HINCRBY and returns the post-increment
// record. The returned count is the value this call produced at the server,
// not a read-back, so it is exact under concurrent writers.
func (s *CounterStore) Increment(ctx context.Context, resource, period string, delta int64, operation string, at time.Time) (ports.UsageRecord, error) {
	k := s.key(resource, period)

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, k, "count", delta)
	meta := map[string]interface{}{"last_updated": at.UTC().Format(time.RFC3339)}
	if operation != "" {
		meta["last_operation"] = operation
	}
	pipe.HSet(ctx, k, meta)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.UsageRecord{}, fmt.Errorf("increment counter: %w", err)
	}

	return ports.UsageRecord{
		Resource:      resource,
		Period:        period,
		Count:         incr.Val(),
		LastUpdated:   at,
		LastOperation: operation,
	}, nil
}

// Read returns the stored record for (resource, period), or a zero-count
// record when the key does not exist.
func (s *CounterStore) Read(ctx context.Context, resource, period string) (ports.UsageRecord, error) {
	vals, err := s.client.HGetAll(ctx, s.key(resource, period)).Result()
	if err != nil {
		return ports.UsageRecord{}, fmt.Errorf("read counter: %w", err)
	}

	rec := ports.UsageRecord{Resource: resource, Period: period}
	if len(vals) == 0 {
		return rec, nil
	}

	if raw, ok := vals["count"]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ports.UsageRecord{}, fmt.Errorf("parse count %q: %w", raw, err)
		}
		rec.Count = n
	}
	if raw, ok := vals["last_updated"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.LastUpdated = t
		}
	}
	rec.LastOperation = vals["last_operation"]

	return rec, nil
}

// Ping verifies connectivity, used by startup wiring.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *CounterStore) Close() error {
	return s.client.Close()
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
