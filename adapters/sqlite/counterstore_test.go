package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/quotamon/adapters/sqlite"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "quotamon.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestIncrement_CreatesAndAccumulates(t *testing.T) {
	store := sqlite.NewCounterStore(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC)

	rec, err := store.Increment(ctx, "AdobeAPI", "2025-06", 1, "convert", at)
	if err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("expected count 1, got %d", rec.Count)
	}

	rec, err = store.Increment(ctx, "AdobeAPI", "2025-06", 1, "extract", at.Add(time.Minute))
	if err != nil {
		t.Fatalf("second increment: %v", err)
	}
	if rec.Count != 2 {
		t.Errorf("expected count 2, got %d", rec.Count)
	}
	if rec.LastOperation != "extract" {
		t.Errorf("expected last operation extract, got %s", rec.LastOperation)
	}
}

func TestIncrement_EmptyOperationKeepsPrevious(t *testing.T) {
	store := sqlite.NewCounterStore(openTestDB(t))
	ctx := context.Background()
	at := time.Now()

	store.Increment(ctx, "AdobeAPI", "2025-06", 1, "convert", at)
	rec, err := store.Increment(ctx, "AdobeAPI", "2025-06", 1, "", at)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if rec.LastOperation != "convert" {
		t.Errorf("expected empty label to keep convert, got %q", rec.LastOperation)
	}
}

func TestRead_AbsentReturnsZeroRecord(t *testing.T) {
	store := sqlite.NewCounterStore(openTestDB(t))

	rec, err := store.Read(context.Background(), "AdobeAPI", "2099-01")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Count != 0 {
		t.Errorf("expected zero count, got %d", rec.Count)
	}
	if rec.Resource != "AdobeAPI" || rec.Period != "2099-01" {
		t.Errorf("expected keyed zero record, got (%s, %s)", rec.Resource, rec.Period)
	}
}

func TestIncrement_PeriodsAreIsolated(t *testing.T) {
	store := sqlite.NewCounterStore(openTestDB(t))
	ctx := context.Background()
	at := time.Now()

	store.Increment(ctx, "AdobeAPI", "2025-06", 10, "convert", at)
	store.Increment(ctx, "AdobeAPI", "2025-07", 1, "convert", at)

	june, _ := store.Read(ctx, "AdobeAPI", "2025-06")
	july, _ := store.Read(ctx, "AdobeAPI", "2025-07")

	if june.Count != 10 || july.Count != 1 {
		t.Errorf("expected isolated counts 10 and 1, got %d and %d", june.Count, july.Count)
	}
}

func TestIncrement_ConcurrentCallersSumExactly(t *testing.T) {
	store := sqlite.NewCounterStore(openTestDB(t))
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := store.Increment(ctx, "AdobeAPI", "2025-06", 1, "convert", time.Now()); err != nil {
					t.Errorf("increment: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	rec, err := store.Read(ctx, "AdobeAPI", "2025-06")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Count != workers*perWorker {
		t.Errorf("expected exact count %d under concurrency, got %d", workers*perWorker, rec.Count)
	}
}

func TestCounters_SurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotamon.db")

	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := sqlite.NewCounterStore(db)
	store.Increment(context.Background(), "AdobeAPI", "2025-06", 42, "convert", time.Now())
	db.Close()

	db2, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(); err != nil {
		t.Fatalf("migrate after reopen: %v", err)
	}

	rec, err := sqlite.NewCounterStore(db2).Read(context.Background(), "AdobeAPI", "2025-06")
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if rec.Count != 42 {
		t.Errorf("expected count 42 to survive reopen, got %d", rec.Count)
	}
}
