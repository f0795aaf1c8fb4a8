package hasher_test

import (
	"testing"

	"github.com/artpar/quotamon/adapters/hasher"
)

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := hasher.NewBcrypt(4) // minimum cost keeps the test quick

	hash, err := h.Hash("service-token-123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if string(hash) == "service-token-123" {
		t.Fatal("expected hash to differ from plaintext")
	}

	if !h.Compare(hash, "service-token-123") {
		t.Error("expected matching token to compare true")
	}
	if h.Compare(hash, "wrong-token") {
		t.Error("expected mismatched token to compare false")
	}
}

func TestBcrypt_InvalidCostFallsBack(t *testing.T) {
	h := hasher.NewBcrypt(99)

	hash, err := h.Hash("x")
	if err != nil {
		t.Fatalf("hash with fallback cost: %v", err)
	}
	if !h.Compare(hash, "x") {
		t.Error("expected round-trip with fallback cost")
	}
}

func TestFake_Compare(t *testing.T) {
	h := hasher.Fake{}

	hash, _ := h.Hash("token")
	if !h.Compare(hash, "token") {
		t.Error("expected fake hasher equality match")
	}
	if h.Compare(hash, "other") {
		t.Error("expected fake hasher mismatch")
	}
}
