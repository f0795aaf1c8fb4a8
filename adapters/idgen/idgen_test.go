package idgen_test

import (
	"sync"
	"testing"

	"github.com/artpar/quotamon/adapters/idgen"
)

func TestUUID_New_Unique(t *testing.T) {
	g := idgen.UUID{}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.New()
		if id == "" {
			t.Fatal("expected non-empty ID")
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("alert-")

	if got := g.New(); got != "alert-1" {
		t.Errorf("expected alert-1, got %s", got)
	}
	if got := g.New(); got != "alert-2" {
		t.Errorf("expected alert-2, got %s", got)
	}
}

func TestSequential_Reset(t *testing.T) {
	g := idgen.NewSequential("id-")
	g.New()
	g.New()

	g.Reset()

	if got := g.New(); got != "id-1" {
		t.Errorf("expected id-1 after reset, got %s", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("c-")

	var wg sync.WaitGroup
	ids := make(chan string, 1000)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ids <- g.New()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID under concurrency: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != 1000 {
		t.Errorf("expected 1000 unique IDs, got %d", len(seen))
	}
}
