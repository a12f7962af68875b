package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LocalBackend is the in-process Backend, used when REDIS_ADDR is unset.
// Each distinct key gets its own *rate.Limiter lazily, mirroring the
// teacher's per-host limiter map.
type LocalBackend struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalBackend builds an empty LocalBackend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{limiters: make(map[string]*rate.Limiter)}
}

func (b *LocalBackend) getLimiter(key string, rule Rule) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rule.perSecond()), rule.Burst)
		b.limiters[key] = lim
	}
	return lim
}

func (b *LocalBackend) Allow(ctx context.Context, key string, rule Rule) (bool, int, error) {
	lim := b.getLimiter(key, rule)
	res := lim.Reserve()
	if !res.OK() {
		return false, 0, nil
	}
	delay := res.Delay()
	if delay <= 0 {
		return true, 0, nil
	}
	res.Cancel()
	return false, int(delay.Seconds()) + 1, nil
}
