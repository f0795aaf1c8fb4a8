package random

import (
	"regexp"
	"testing"
)

func TestBytes_Length(t *testing.T) {
	r := Real{}

	for _, n := range []int{1, 16, 32, 64} {
		b, err := r.Bytes(n)
		if err != nil {
			t.Fatalf("Bytes(%d) failed: %v", n, err)
		}
		if len(b) != n {
			t.Errorf("Bytes(%d) returned %d bytes", n, len(b))
		}
	}
}

func TestBytes_NotRepeating(t *testing.T) {
	r := Real{}

	a, err := r.Bytes(32)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	b, err := r.Bytes(32)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	if string(a) == string(b) {
		t.Error("two 32-byte reads should not be identical")
	}
}

func TestHex_LengthAndAlphabet(t *testing.T) {
	r := Real{}
	hexPattern := regexp.MustCompile(`^[0-9a-f]+$`)

	for _, n := range []int{8, 47, 48, 64} {
		s, err := r.Hex(n)
		if err != nil {
			t.Fatalf("Hex(%d) failed: %v", n, err)
		}
		if len(s) != n {
			t.Errorf("Hex(%d) returned %d characters: %s", n, len(s), s)
		}
		if !hexPattern.MatchString(s) {
			t.Errorf("Hex(%d) returned non-hex characters: %s", n, s)
		}
	}
}
