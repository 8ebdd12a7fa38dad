package utils

import (
	"context"
	"time"
)

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(ctx context.Context, c Cache, state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := c.Set(ctx, "oauth:state:"+state, []byte("1"), ttl); err != nil {
		Sugar.Warnf("save oauth state failed: %v", err)
	}
}

// ConsumeState validates and removes a state token; each state is single use.
func ConsumeState(ctx context.Context, c Cache, state string) bool {
	if state == "" {
		return false
	}
	_, ok := c.GetDel(ctx, "oauth:state:"+state)
	return ok
}
