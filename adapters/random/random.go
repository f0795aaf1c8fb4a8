// Package random generates cryptographically secure random credentials.
package random

import (
	"crypto/rand"
	"encoding/hex"
)

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Hex generates a random hex string of n characters.
func (r Real) Hex(n int) (string, error) {
	// n/2 bytes yield n hex chars
	b, err := r.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	s := hex.EncodeToString(b)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}
