package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/clock"
	"github.com/waitline/queuecoord/internal/queue"
)

const (
	// NoShowInterval is the 5-minute sweep cadence of §4.J.
	NoShowInterval = 5 * time.Minute
	// NoShowThreshold is the 20-minute no-response rule of §4.J.
	NoShowThreshold = 20 * time.Minute

	noShowReason = "did not respond within 20 minutes"
)

// entryQuerier is the narrow repository read path each sweeper needs.
type entryQuerier interface {
	NotifiedBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error)
	PendingVerificationBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error)
}

// entryTransitioner is the narrow orchestrator write path each sweeper
// needs.
type entryTransitioner interface {
	SweepNoShow(ctx context.Context, queueID, reason string) error
	SweepRevertPendingVerification(ctx context.Context, queueID string) error
}

// NewNoShowRunner builds the no-show sweeper of §4.J. metrics may be nil.
// interval overrides the default cadence when positive, without touching
// the 20-minute no-response rule.
func NewNoShowRunner(repo entryQuerier, svc entryTransitioner, clk clock.Clock, log zerolog.Logger, metrics MetricsRecorder, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = NoShowInterval
	}
	r := NewRunner("no-show", interval, clk, func(ctx context.Context) {
		cutoff := clk.Now().Add(-NoShowThreshold)
		entries, err := repo.NotifiedBefore(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("no-show sweeper: failed to query notified entries")
			return
		}
		swept := 0
		for _, e := range entries {
			if err := svc.SweepNoShow(ctx, e.ID, noShowReason); err != nil {
				log.Error().Err(err).Str("queue_id", e.ID).Msg("no-show sweeper: failed to mark no-show")
				continue
			}
			swept++
		}
		if metrics != nil && swept > 0 {
			metrics.AddSweptEntries("no-show", swept)
		}
	}, log)
	if metrics != nil {
		r.WithMetrics(metrics)
	}
	return r
}
