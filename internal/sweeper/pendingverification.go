package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/clock"
)

const (
	// PendingVerificationInterval is the 1-minute sweep cadence of §4.J.
	PendingVerificationInterval = time.Minute
	// PendingVerificationThreshold is the 5-minute operator-decision
	// timeout of §4.J.
	PendingVerificationThreshold = 5 * time.Minute
)

// NewPendingVerificationRunner builds the pending-verification timeout
// sweeper of §4.J: entries not decided within 5 minutes revert to
// notified with no reputation change. interval overrides the default
// cadence when non-zero.
func NewPendingVerificationRunner(repo entryQuerier, svc entryTransitioner, clk clock.Clock, log zerolog.Logger, metrics MetricsRecorder, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = PendingVerificationInterval
	}
	r := NewRunner("pending-verification-timeout", interval, clk, func(ctx context.Context) {
		cutoff := clk.Now().Add(-PendingVerificationThreshold)
		entries, err := repo.PendingVerificationBefore(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("pending-verification sweeper: failed to query entries")
			return
		}
		reverted := 0
		for _, e := range entries {
			if err := svc.SweepRevertPendingVerification(ctx, e.ID); err != nil {
				log.Error().Err(err).Str("queue_id", e.ID).Msg("pending-verification sweeper: failed to revert entry")
				continue
			}
			reverted++
		}
		if metrics != nil && reverted > 0 {
			metrics.AddSweptEntries("pending-verification-timeout", reverted)
		}
	}, log)
	if metrics != nil {
		r.WithMetrics(metrics)
	}
	return r
}
