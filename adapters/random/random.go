// Package random provides random sources and trigger-token generation.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// TokenPrefix marks carebill trigger tokens.
const TokenPrefix = "cb_"

// tokenBytes gives 48 hex characters after the prefix.
const tokenBytes = 24

// Source yields random bytes.
type Source interface {
	Bytes(n int) ([]byte, error)
}

// Real uses crypto/rand.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// TriggerToken returns a new bearer token for the run endpoints.
func TriggerToken(src Source) (string, error) {
	b, err := src.Bytes(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if len(b) != tokenBytes {
		return "", fmt.Errorf("generate token: got %d random bytes, want %d", len(b), tokenBytes)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// Fake provides deterministic bytes for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte
	err     error
}

// NewFake creates a fake source. Preset values are returned in order before
// falling back to counter-derived bytes.
func NewFake(values ...[]byte) *Fake {
	return &Fake{values: values}
}

// Fail makes every following call return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Bytes returns the next preset value, zero-padded or truncated to n.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	b := make([]byte, n)
	if len(f.values) > 0 {
		copy(b, f.values[0])
		f.values = f.values[1:]
		return b, nil
	}
	f.counter++
	for i := range b {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}
