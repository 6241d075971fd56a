// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/carebill/ports"
	"github.com/google/uuid"
)

// UUID generates random UUIDs, optionally behind a prefix such as "run_".
type UUID struct {
	Prefix string
}

// New generates a new UUID v4.
func (g UUID) New() string {
	return g.Prefix + uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// Sequential generates predictable IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns prefix followed by the next counter value, starting at 1.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset restarts the counter.
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

var _ ports.IDGenerator = (*Sequential)(nil)
