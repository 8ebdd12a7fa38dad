package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestGuard(cooldown time.Duration, daily, fails int, ban time.Duration) (*RegistrationGuard, *stepClock) {
	c, clock := newClockedCache()
	g := NewRegistrationGuard(c, cooldown, daily, fails, ban)
	g.now = clock.Now
	return g, clock
}

func TestRegistrationGuardCooldown(t *testing.T) {
	ctx := context.Background()
	g, clock := newTestGuard(time.Minute, 0, 0, 0)

	ok, _ := g.Allow(ctx, "1.2.3.4")
	assert.True(t, ok)
	ok, reason := g.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, "too many requests, try again shortly", reason)

	ok, _ = g.Allow(ctx, "5.6.7.8")
	assert.True(t, ok)

	clock.Advance(61 * time.Second)
	ok, _ = g.Allow(ctx, "1.2.3.4")
	assert.True(t, ok)
}

func TestRegistrationGuardDailyLimit(t *testing.T) {
	ctx := context.Background()
	g, clock := newTestGuard(0, 2, 0, 0)

	for i := 0; i < 2; i++ {
		ok, _ := g.Allow(ctx, "ip")
		assert.True(t, ok)
		g.RecordSuccess(ctx, "ip")
	}
	ok, reason := g.Allow(ctx, "ip")
	assert.False(t, ok)
	assert.Equal(t, "daily registration limit reached", reason)

	clock.Advance(24 * time.Hour)
	ok, _ = g.Allow(ctx, "ip")
	assert.True(t, ok)
}

func TestRegistrationGuardBansAfterFailures(t *testing.T) {
	ctx := context.Background()
	g, clock := newTestGuard(0, 0, 3, 10*time.Minute)

	for i := 0; i < 2; i++ {
		g.RecordFailure(ctx, "ip")
		ok, _ := g.Allow(ctx, "ip")
		assert.True(t, ok)
	}
	g.RecordFailure(ctx, "ip")
	ok, reason := g.Allow(ctx, "ip")
	assert.False(t, ok)
	assert.Equal(t, "too many failed registrations, try again later", reason)

	clock.Advance(11 * time.Minute)
	ok, _ = g.Allow(ctx, "ip")
	assert.True(t, ok)
}

func TestRegistrationGuardDisabled(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard(0, 0, 0, 0)
	for i := 0; i < 10; i++ {
		g.RecordFailure(ctx, "ip")
		g.RecordSuccess(ctx, "ip")
		ok, _ := g.Allow(ctx, "ip")
		assert.True(t, ok)
	}
}
