package reputation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetCreatesLazily(t *testing.T) {
	s := NewMemStore(func() time.Time { return time.Unix(0, 0) })
	r, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, r.Score)
	assert.Equal(t, TierNew, r.Tier)
}

func TestMemStore_ApplyUpdatesScoreAndTier(t *testing.T) {
	s := NewMemStore(func() time.Time { return time.Unix(0, 0) })
	r, err := s.Apply(context.Background(), "u1", ActionSuccessfulCheckIn, "q1|notified->nearby")
	require.NoError(t, err)
	assert.Equal(t, 52, r.Score)
	assert.Equal(t, TierNew, r.Tier)
}

func TestMemStore_ApplyIsIdempotentPerEventKey(t *testing.T) {
	s := NewMemStore(func() time.Time { return time.Unix(0, 0) })
	ctx := context.Background()
	_, err := s.Apply(ctx, "u1", ActionNoShow, "q1|no-show")
	require.NoError(t, err)
	r2, err := s.Apply(ctx, "u1", ActionNoShow, "q1|no-show")
	require.NoError(t, err)
	assert.Equal(t, 45, r2.Score)
}

func TestMemStore_ConcurrentApplySerializesPerUser(t *testing.T) {
	s := NewMemStore(func() time.Time { return time.Unix(0, 0) })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Apply(ctx, "u1", ActionCompletedService, "")
		}(i)
	}
	wg.Wait()

	r, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60, r.Score)
}

func TestMemStore_IsBanned(t *testing.T) {
	s := NewMemStore(func() time.Time { return time.Unix(0, 0) })
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, _ = s.Apply(ctx, "u2", ActionFalseCheckIn, "")
	}
	banned, err := s.IsBanned(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, banned)
}
