package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const revokedKeyPrefix = "revoked:"

// minRevocationTTL keeps entries for tokens at or past their expiry for a
// short while so a racing request still sees the revocation.
const minRevocationTTL = time.Minute

// RedisLedger keeps revoked token ids as keys that expire together with
// the token they describe.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLedger(url string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisLedger{client: client, now: time.Now}, nil
}

func (r *RedisLedger) Close() error { return r.client.Close() }

func (r *RedisLedger) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisLedger) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	// SetNX leaves the first revocation time in place.
	if err := r.client.SetNX(ctx, revokedKeyPrefix+tokenID, revokedAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// PruneExpired is a no-op; key expiry does the work.
func (r *RedisLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
