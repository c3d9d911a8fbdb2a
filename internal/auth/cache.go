package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedVerifier wraps a Verifier with a short-TTL cache over entitlement
// checks, so a burst of chat requests does not re-query the subscription
// service on every turn. Token verification is never cached: revocation
// must take effect immediately.
type CachedVerifier struct {
	inner Verifier
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedVerifier(inner Verifier, ttl time.Duration) (*CachedVerifier, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create entitlement cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedVerifier{inner: inner, cache: cache, ttl: ttl}, nil
}

func (v *CachedVerifier) VerifyToken(ctx context.Context, token string) (*User, error) {
	return v.inner.VerifyToken(ctx, token)
}

func (v *CachedVerifier) VerifyEntitlement(ctx context.Context, userID, feature string) (*Entitlement, error) {
	key := userID + "\x00" + feature
	if cached, ok := v.cache.Get(key); ok {
		if ent, ok := cached.(*Entitlement); ok {
			return ent, nil
		}
	}

	ent, err := v.inner.VerifyEntitlement(ctx, userID, feature)
	if err != nil {
		return nil, err
	}
	// Only positive verdicts are cached; a denied check re-queries so a
	// fresh subscription is picked up without waiting out the TTL.
	if ent != nil {
		v.cache.SetWithTTL(key, ent, 1, v.ttl)
	}
	return ent, nil
}

func (v *CachedVerifier) Close() {
	v.cache.Close()
}
