// Package memory provides in-memory adapter implementations, used as the
// default backend for single-process deployments and as test doubles.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/quotamon/domain/period"
	"github.com/artpar/quotamon/ports"
)

// counterShard is a single shard of the counter store.
type counterShard struct {
	mu      sync.RWMutex
	records map[string]ports.UsageRecord
}

// CounterStore is a sharded in-memory implementation of ports.CounterStore.
// Sharding keeps lock contention low when many workers record concurrently.
type CounterStore struct {
	shards    []*counterShard
	numShards int
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// CounterStoreConfig configures the counter store.
type CounterStoreConfig struct {
	NumShards       int           // Number of shards (default: 32)
	CleanupInterval time.Duration // How often to drop stale periods (default: 1h)
}

// NewCounterStore creates a new sharded in-memory counter store.
func NewCounterStore(cfg CounterStoreConfig) *CounterStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	s := &CounterStore{
		shards:    make([]*counterShard, cfg.NumShards),
		numShards: cfg.NumShards,
		done:      make(chan struct{}),
	}

	for i := range s.shards {
		s.shards[i] = &counterShard{
			records: make(map[string]ports.UsageRecord),
		}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// key generates the map key for a resource and period.
func (s *CounterStore) key(resource, periodKey string) string {
	return resource + ":" + periodKey
}

// getShard returns the shard for a given key using consistent hashing.
func (s *CounterStore) getShard(key string) *counterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Increment atomically adds delta to the counter for (resource, period) and
// returns the post-increment record. The record is created on first use.
func (s *CounterStore) Increment(ctx context.Context, resource, periodKey string, delta int64, operation string, at time.Time) (ports.UsageRecord, error) {
	k := s.key(resource, periodKey)
	shard := s.getShard(k)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[k]
	if !ok {
		rec = ports.UsageRecord{
			Resource: resource,
			Period:   periodKey,
		}
	}

	rec.Count += delta
	rec.LastUpdated = at
	if operation != "" {
		rec.LastOperation = operation
	}

	shard.records[k] = rec
	return rec, nil
}

// Read returns the record for (resource, period), or a zero-count record when
// none exists yet.
func (s *CounterStore) Read(ctx context.Context, resource, periodKey string) (ports.UsageRecord, error) {
	k := s.key(resource, periodKey)
	shard := s.getShard(k)

	shard.mu.RLock()
	rec, ok := shard.records[k]
	shard.mu.RUnlock()

	if ok {
		return rec, nil
	}
	return ports.UsageRecord{Resource: resource, Period: periodKey}, nil
}

// cleanupLoop periodically removes stale period entries.
func (s *CounterStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.doCleanup()
		case <-s.done:
			return
		}
	}
}

// doCleanup drops records for periods that ended more than two periods ago.
// Keys a custom period function produced are left alone; only canonical
// "YYYY-MM" keys are aged out.
func (s *CounterStore) doCleanup() {
	cutoff := time.Now().AddDate(0, -2, 0)

	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, rec := range shard.records {
			start, err := period.Parse(rec.Period)
			if err != nil {
				continue
			}
			if start.Before(cutoff) {
				delete(shard.records, k)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (s *CounterStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cleanup.Stop()
	})
	return nil
}

// Clear removes all records (for testing).
func (s *CounterStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.records = make(map[string]ports.UsageRecord)
		shard.mu.Unlock()
	}
}

// Len returns the total number of records across all shards (for testing).
func (s *CounterStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.records)
		shard.mu.RUnlock()
	}
	return total
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
