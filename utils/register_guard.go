package utils

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// RegistrationGuard throttles self sign-up per client IP: a short cooldown between
// attempts, a daily success limit and a temporary ban after repeated failures.
// Cache errors fail open.
type RegistrationGuard struct {
	cache       Cache
	cooldown    time.Duration
	dailyLimit  int
	failLimit   int
	banDuration time.Duration
	now         func() time.Time
}

// NewRegistrationGuard builds a guard; a non-positive setting disables that check.
func NewRegistrationGuard(c Cache, cooldown time.Duration, dailyLimit, failLimit int, banDuration time.Duration) *RegistrationGuard {
	return &RegistrationGuard{
		cache:       c,
		cooldown:    cooldown,
		dailyLimit:  dailyLimit,
		failLimit:   failLimit,
		banDuration: banDuration,
		now:         time.Now,
	}
}

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// Allow reports whether ip may attempt a registration now, and why not otherwise.
func (g *RegistrationGuard) Allow(ctx context.Context, ip string) (bool, string) {
	if _, banned := g.cache.Get(ctx, regKey("ban", ip)); banned {
		return false, "too many failed registrations, try again later"
	}
	if g.dailyLimit > 0 {
		if raw, ok := g.cache.Get(ctx, g.dayKey(ip)); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && n >= g.dailyLimit {
				return false, "daily registration limit reached"
			}
		}
	}
	if g.cooldown > 0 {
		ok, err := g.cache.SetNX(ctx, regKey("cooldown", ip), []byte("1"), g.cooldown)
		if err == nil && !ok {
			return false, "too many requests, try again shortly"
		}
	}
	return true, ""
}

// RecordSuccess counts a completed registration towards today's limit.
func (g *RegistrationGuard) RecordSuccess(ctx context.Context, ip string) {
	if g.dailyLimit <= 0 {
		return
	}
	key := g.dayKey(ip)
	if n, err := g.cache.Incr(ctx, key); err == nil && n == 1 {
		now := g.now()
		endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		_ = g.cache.Expire(ctx, key, endOfDay.Sub(now))
	}
}

// RecordFailure counts a rejected registration and bans ip once the hourly limit is hit.
func (g *RegistrationGuard) RecordFailure(ctx context.Context, ip string) {
	if g.failLimit <= 0 {
		return
	}
	key := regKey("failhour", ip, g.now().Format("2006010215"))
	n, err := g.cache.Incr(ctx, key)
	if err != nil {
		return
	}
	if n == 1 {
		_ = g.cache.Expire(ctx, key, time.Hour)
	}
	if int(n) >= g.failLimit {
		_ = g.cache.Set(ctx, regKey("ban", ip), []byte("1"), g.banDuration)
		Sugar.Warnw("registration temporarily banned", "ip", ip, "failures", n)
	}
}

func (g *RegistrationGuard) dayKey(ip string) string {
	return regKey("day", ip, g.now().Format("20060102"))
}
