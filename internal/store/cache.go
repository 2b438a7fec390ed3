package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedLedger fronts another Ledger with an in-process LRU of ids known to
// be revoked. Only positive answers are cached: a revocation never goes
// away before its token expires, while a "not revoked" answer can change at
// any moment.
type CachedLedger struct {
	next  Ledger
	cache *lru.LRU[string, struct{}]
}

func NewCachedLedger(next Ledger, size int, ttl time.Duration) *CachedLedger {
	if size < 1 {
		size = 1024
	}
	return &CachedLedger{
		next:  next,
		cache: lru.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (c *CachedLedger) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	if err := c.next.Revoke(ctx, tokenID, revokedAt, expiresAt); err != nil {
		return err
	}
	c.cache.Add(tokenID, struct{}{})
	return nil
}

func (c *CachedLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if _, ok := c.cache.Get(tokenID); ok {
		return true, nil
	}
	revoked, err := c.next.IsRevoked(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if revoked {
		c.cache.Add(tokenID, struct{}{})
	}
	return revoked, nil
}

func (c *CachedLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.next.PruneExpired(ctx, now)
}

// Ping checks the backing ledger when it can be pinged.
func (c *CachedLedger) Ping(ctx context.Context) error {
	if p, ok := c.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Len reports how many ids are cached.
func (c *CachedLedger) Len() int { return c.cache.Len() }
