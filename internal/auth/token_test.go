package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("super-secret")

func newTestIssuer(t *testing.T, now func() time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(IssuerConfig{Secret: testSecret, Now: now})
	require.NoError(t, err)
	return i
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(IssuerConfig{})
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestIssueAndVerify_Access(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, nil)

	tok, err := i.IssueAccess(42)
	require.NoError(t, err)
	require.NotEmpty(t, tok.TokenID)

	id, err := i.Verify(tok.Value, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, tok.TokenID, id.TokenID)
	assert.Equal(t, KindAccess, id.Kind)
	assert.WithinDuration(t, time.Now().Add(DefaultAccessTTL), id.ExpiresAt, 2*time.Second)
}

func TestIssueRefresh_Lifetime(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, nil)

	tok, err := i.IssueRefresh(7)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultRefreshTTL), tok.ExpiresAt, 2*time.Second)

	id, err := i.Verify(tok.Value, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.UserID)
}

func TestVerify_KindMismatch(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, nil)

	access, err := i.IssueAccess(1)
	require.NoError(t, err)
	refresh, err := i.IssueRefresh(1)
	require.NoError(t, err)

	_, err = i.Verify(access.Value, KindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = i.Verify(refresh.Value, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_TokenIDsAreUnique(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, nil)

	seen := make(map[string]struct{})
	for n := 0; n < 200; n++ {
		tok, err := i.IssueAccess(1)
		require.NoError(t, err)
		_, dup := seen[tok.TokenID]
		require.False(t, dup, "duplicate jti %s", tok.TokenID)
		seen[tok.TokenID] = struct{}{}
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	past := func() time.Time { return time.Now().Add(-31 * time.Minute) }
	minted := newTestIssuer(t, past)
	tok, err := minted.IssueAccess(3)
	require.NoError(t, err)

	_, err = newTestIssuer(t, nil).Verify(tok.Value, KindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	t.Parallel()
	past := func() time.Time { return time.Now().Add(-time.Hour) }
	other, err := NewIssuer(IssuerConfig{Secret: []byte("other"), Now: past})
	require.NoError(t, err)
	tok, err := other.IssueAccess(3)
	require.NoError(t, err)

	_, err = newTestIssuer(t, nil).Verify(tok.Value, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()
	other, err := NewIssuer(IssuerConfig{Secret: []byte("wrong-secret")})
	require.NoError(t, err)
	tok, err := other.IssueAccess(9)
	require.NoError(t, err)

	_, err = newTestIssuer(t, nil).Verify(tok.Value, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, nil)

	for _, s := range []string{"", "not.a.jwt", "abc"} {
		_, err := i.Verify(s, KindAccess)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", s)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Kind: KindAccess,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestIssuer(t, nil).Verify(s, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsMissingClaims(t *testing.T) {
	t.Parallel()
	cases := map[string]Claims{
		"no exp":  {RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ID: "a"}, Kind: KindAccess},
		"no jti":  {RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}, Kind: KindAccess},
		"bad sub": {RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ID: "a", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}, Kind: KindAccess},
	}
	i := newTestIssuer(t, nil)
	for name, c := range cases {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testSecret)
		require.NoError(t, err)
		_, err = i.Verify(s, KindAccess)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestVerify_ExpiryDecidedBeforeKind(t *testing.T) {
	t.Parallel()
	past := func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	tok, err := newTestIssuer(t, past).IssueRefresh(3)
	require.NoError(t, err)

	_, err = newTestIssuer(t, nil).Verify(tok.Value, KindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
