package ratelimit

import (
	"context"
	"fmt"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// Backend is the storage strategy behind a named limit: in-process
// token buckets, or counters shared across instances via Redis.
type Backend interface {
	Allow(ctx context.Context, key string, rule Rule) (allowed bool, retryAfterSeconds int, err error)
}

// Limits bundles the three named rate limits of §4.L, each held in its
// own Backend field; NewLimits points all three at the same backend.
type Limits struct {
	checkIn      Backend
	notification Backend
	generalAPI   Backend
}

// NewLimits builds Limits with backend supplying all three families. Pass an
// in-process backend (NewLocalBackend) when REDIS_ADDR is unset, or a
// RedisBackend when it is set, per SPEC_FULL.md §2.
func NewLimits(backend Backend) *Limits {
	return &Limits{checkIn: backend, notification: backend, generalAPI: backend}
}

func checkAllow(ctx context.Context, b Backend, key string, rule Rule, kind cerrors.Kind) error {
	allowed, retryAfter, err := b.Allow(ctx, key, rule)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	return cerrors.New(kind, fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfter)).
		WithDetails(map[string]interface{}{"retryAfter": retryAfter, "key": key})
}

// CheckIn enforces 3 attempts / 5 min per (userId, queueId).
func (l *Limits) CheckIn(ctx context.Context, userID, queueID string) error {
	return checkAllow(ctx, l.checkIn, "checkin|"+userID+"|"+queueID, CheckInRule, cerrors.KindRateLimitExceeded)
}

// Notification enforces 10 / 1h per queueId.
func (l *Limits) Notification(ctx context.Context, queueID string) error {
	return checkAllow(ctx, l.notification, "notify|"+queueID, NotificationRule, cerrors.KindNotificationRateLimit)
}

// GeneralAPI enforces 100 / 15 min per user.
func (l *Limits) GeneralAPI(ctx context.Context, userID string) error {
	return checkAllow(ctx, l.generalAPI, "api|"+userID, GeneralAPIRule, cerrors.KindRateLimitExceeded)
}
