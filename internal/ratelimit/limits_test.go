package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

func TestLimits_CheckIn_AllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewLimits(NewLocalBackend())
	ctx := context.Background()

	for i := 0; i < CheckInRule.Burst; i++ {
		require.NoError(t, l.CheckIn(ctx, "user-1", "queue-1"))
	}

	err := l.CheckIn(ctx, "user-1", "queue-1")
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindRateLimitExceeded, kind)
}

func TestLimits_Notification_UsesNotificationRateLimitKind(t *testing.T) {
	l := NewLimits(NewLocalBackend())
	ctx := context.Background()

	for i := 0; i < NotificationRule.Burst; i++ {
		require.NoError(t, l.Notification(ctx, "queue-1"))
	}

	err := l.Notification(ctx, "queue-1")
	require.Error(t, err)
	kind, _ := cerrors.KindOf(err)
	assert.Equal(t, cerrors.KindNotificationRateLimit, kind)
}

func TestLimits_KeysAreIndependentPerQueue(t *testing.T) {
	l := NewLimits(NewLocalBackend())
	ctx := context.Background()

	for i := 0; i < CheckInRule.Burst; i++ {
		require.NoError(t, l.CheckIn(ctx, "user-1", "queue-1"))
	}

	// A different queue for the same user is a distinct bucket.
	assert.NoError(t, l.CheckIn(ctx, "user-1", "queue-2"))
}
