package utils

import (
	"context"
	"time"
)

const blacklistPrefix = "jwt:blacklist:"

// TokenBlacklist remembers revoked token ids until they would have expired anyway.
type TokenBlacklist struct {
	cache Cache
}

func NewTokenBlacklist(c Cache) *TokenBlacklist {
	return &TokenBlacklist{cache: c}
}

// Add blacklists a token id until expiresAt. Already-expired tokens are ignored.
func (b *TokenBlacklist) Add(ctx context.Context, tokenID string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := b.cache.Set(ctx, blacklistPrefix+tokenID, []byte("1"), ttl); err != nil {
		Sugar.Warnf("blacklist token failed jti=%s err=%v", tokenID, err)
	}
}

// Contains reports whether the token id was revoked before natural expiration.
func (b *TokenBlacklist) Contains(ctx context.Context, tokenID string) bool {
	_, ok := b.cache.Get(ctx, blacklistPrefix+tokenID)
	return ok
}
