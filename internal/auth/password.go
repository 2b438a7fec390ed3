package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher using the given bcrypt cost. Out of range costs
// fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt digest of p.
func (h *Hasher) Hash(p string) (string, error) {
	if len(p) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(p), h.cost)
	return string(b), err
}

// Verify reports whether p matches digest. A malformed digest never matches.
func (h *Hasher) Verify(digest, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(p)) == nil
}

// VerifyNothing runs a comparison of p against a throwaway digest of the
// same cost, so a lookup miss costs as much as a wrong password. It always
// reports false.
func (h *Hasher) VerifyNothing(p string) bool {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("no such user"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(p))
	return false
}
