package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	l, err := NewRedisLedger("redis://" + mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis ledger: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
		mr.Close()
	})
	return l, mr
}

func TestNewRedisLedger_BadURL(t *testing.T) {
	_, err := NewRedisLedger("not a url")
	assert.Error(t, err)
}

func TestRedisLedger_RevokeAndExpire(t *testing.T) {
	l, mr := setupRedisLedger(t)
	ctx := context.Background()
	now := time.Now()

	revoked, err := l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, l.Revoke(ctx, "jti-1", now, now.Add(10*time.Minute)))
	revoked, err = l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(revokedKeyPrefix + "jti-1")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl follows token expiry, got %s", ttl)

	mr.FastForward(11 * time.Minute)
	revoked, err = l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisLedger_Idempotent(t *testing.T) {
	l, mr := setupRedisLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, l.Revoke(ctx, "jti-1", now, now.Add(time.Hour)))
	require.NoError(t, l.Revoke(ctx, "jti-1", now.Add(time.Minute), now.Add(time.Hour)))

	v, err := mr.Get(revokedKeyPrefix + "jti-1")
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), v, "first revocation time is kept")
}

func TestRedisLedger_ExpiredTokenStillRecorded(t *testing.T) {
	l, mr := setupRedisLedger(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, l.Revoke(ctx, "jti-late", now, now.Add(-time.Second)))
	assert.Equal(t, minRevocationTTL, mr.TTL(revokedKeyPrefix+"jti-late"))

	n, err := l.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisLedger_ServerDown(t *testing.T) {
	l, mr := setupRedisLedger(t)
	mr.Close()

	_, err := l.IsRevoked(context.Background(), "jti-1")
	assert.Error(t, err)
}
