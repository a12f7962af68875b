package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/channel/realtime"
	"github.com/waitline/queuecoord/internal/channel/webpush"
	"github.com/waitline/queuecoord/internal/queue"
	"github.com/waitline/queuecoord/internal/ratelimit"
	"github.com/waitline/queuecoord/internal/reputation"
)

// HistoryReader exposes a user's check-in history for the
// GET /users/{id}/checkin-history endpoint.
type HistoryReader = queue.CheckInHistoryReader

// PushSubscriptionPutter upserts a subscription created client-side,
// satisfied by postgres.PushSubscriptionRepository.
type PushSubscriptionPutter interface {
	Put(ctx context.Context, sub webpush.Subscription) error
}

// DBPinger reports Postgres connectivity for GET /healthz, satisfied by
// *sqlx.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RedisPinger reports Redis connectivity for GET /healthz, satisfied by
// ratelimit.RedisBackend. Nil when the coordinator runs without Redis.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BreakerStates reports each notification channel's circuit breaker
// state for GET /healthz, satisfied by resilience.Manager.
type BreakerStates interface {
	States() map[string]string
}

// Dependencies are every collaborator the HTTP boundary routes into.
type Dependencies struct {
	Service    *queue.Service
	Reputation reputation.Store
	History    HistoryReader
	Limits     *ratelimit.Limits
	Verifier   TokenVerifier
	Hub        *realtime.Hub
	PushStore  webpush.SubscriptionStore
	PushPutter PushSubscriptionPutter
	DB         DBPinger
	Redis      RedisPinger
	Breakers   BreakerStates
	Log        zerolog.Logger
}
