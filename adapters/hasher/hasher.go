// Package hasher hashes and verifies the bearer tokens that guard billing triggers.
package hasher

import (
	"strings"

	"github.com/artpar/carebill/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher; out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash of the token.
func (h *Bcrypt) Hash(token string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(token)), h.cost)
}

// Compare reports whether token matches hash. An empty hash never matches.
func (h *Bcrypt) Compare(hash []byte, token string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(strings.TrimSpace(token))) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Fake stores tokens in the clear (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the token as bytes.
func (Fake) Hash(token string) ([]byte, error) {
	return []byte(token), nil
}

// Compare does a simple equality check.
func (Fake) Compare(hash []byte, token string) bool {
	return len(hash) > 0 && string(hash) == token
}

var _ ports.Hasher = Fake{}
