package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	for _, p := range []string{"p@ss1234", "correct horse battery staple", "ünïcødé"} {
		digest, err := h.Hash(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, digest)
		assert.True(t, h.Verify(digest, p))
		assert.False(t, h.Verify(digest, p+"x"))
	}
}

func TestHasher_SaltsDiffer(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify(a, "same"))
	assert.True(t, h.Verify(b, "same"))
}

func TestHasher_MalformedDigest(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	assert.False(t, h.Verify("", "p"))
	assert.False(t, h.Verify("not-a-bcrypt-hash", "p"))
}

func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestHasher_RejectsLongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	digest, err := h.Hash(strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)
	assert.True(t, h.Verify(digest, strings.Repeat("a", MaxPasswordBytes)))
}

func TestHasher_VerifyNothing(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	assert.False(t, h.VerifyNothing("no such user"))
	assert.False(t, h.VerifyNothing(""))
	cost, err := bcrypt.Cost(h.dummy)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
