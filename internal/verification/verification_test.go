package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitline/queuecoord/internal/geo"
	"github.com/waitline/queuecoord/internal/reputation"
)

type stubHistory struct {
	recent []PriorCheckIn
	active []ActiveEntry
}

func (s stubHistory) RecentCheckIns(ctx context.Context, userID string, limit int, since time.Time) ([]PriorCheckIn, error) {
	return s.recent, nil
}

func (s stubHistory) ActiveEntriesForUser(ctx context.Context, userID string) ([]ActiveEntry, error) {
	return s.active, nil
}

func TestEngine_HappyPathAutoApproval(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 12.97162, Longitude: 77.59461}
	notified := time.Now().Add(-10 * time.Minute)

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		NotifiedAt:    &notified,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.Verified)
	assert.True(t, decision.AutoApproved)
	assert.False(t, decision.RequiresReview)
}

func TestEngine_DistantCheckInRequiresReview(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 12.9800, Longitude: 77.5946}
	notified := time.Now().Add(-10 * time.Minute)

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		NotifiedAt:    &notified,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.Verified)
	assert.False(t, decision.AutoApproved)
	assert.True(t, decision.RequiresReview)
	assert.Equal(t, "outside auto range", decision.Reason)
}

func TestEngine_TooFarRejected(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 13.5, Longitude: 77.5946}

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, decision.Verified)
	assert.Equal(t, "too far", decision.Reason)
}

func TestEngine_NoLocationRequiresReview(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{})

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		VenueLocation: geo.Point{Latitude: 1, Longitude: 1},
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.RequiresReview)
	assert.Equal(t, "no location provided", decision.Reason)
}

func TestEngine_BannedUserRejectedOutright(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, _ = rep.Apply(ctx, "banned-user", reputation.ActionFalseCheckIn, "")
	}
	eng := New(rep, stubHistory{})

	decision, err := eng.Evaluate(ctx, Input{
		UserID:        "banned-user",
		VenueLocation: geo.Point{Latitude: 1, Longitude: 1},
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, decision.Verified)
	assert.Equal(t, "banned", decision.Reason)
}

func TestEngine_FastCheckInFlaggedSuspicious(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 12.97162, Longitude: 77.59461}
	notified := time.Now().Add(-1 * time.Minute)

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		NotifiedAt:    &notified,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.RequiresReview)
	assert.True(t, decision.Suspicious)
}

func TestEngine_RepeatedLocationFlaggedSuspicious(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	recent := make([]PriorCheckIn, 0, 4)
	for i := 0; i < 4; i++ {
		recent = append(recent, PriorCheckIn{Latitude: 12.9716, Longitude: 77.5946, At: time.Now()})
	}
	eng := New(rep, stubHistory{recent: recent})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 12.97162, Longitude: 77.59461}

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.RequiresReview)
	assert.True(t, decision.Suspicious)
}

func TestEngine_MultipleVenuesFlaggedSuspicious(t *testing.T) {
	rep := reputation.NewMemStore(func() time.Time { return time.Unix(0, 0) })
	eng := New(rep, stubHistory{active: []ActiveEntry{{VenueID: "v1"}, {VenueID: "v2"}}})

	venue := geo.Point{Latitude: 12.9716, Longitude: 77.5946}
	user := geo.Point{Latitude: 12.97162, Longitude: 77.59461}

	decision, err := eng.Evaluate(context.Background(), Input{
		UserID:        "u1",
		UserLocation:  &user,
		VenueLocation: venue,
		AttemptedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decision.RequiresReview)
	assert.True(t, decision.Suspicious)
}
