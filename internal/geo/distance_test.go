package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

func TestDistanceMeters_SamePoint(t *testing.T) {
	p := Point{Latitude: 12.9716, Longitude: 77.5946}
	d, err := DistanceMeters(p, p)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
}

func TestDistanceMeters_HappyPathAutoApproval(t *testing.T) {
	venue := Point{Latitude: 12.9716, Longitude: 77.5946}
	customer := Point{Latitude: 12.97162, Longitude: 77.59461}

	d, err := DistanceMeters(venue, customer)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, 5)
}

func TestDistanceMeters_DistantCheckIn(t *testing.T) {
	venue := Point{Latitude: 12.9716, Longitude: 77.5946}
	customer := Point{Latitude: 12.9800, Longitude: 77.5946}

	d, err := DistanceMeters(venue, customer)
	require.NoError(t, err)
	assert.InDelta(t, 935, d, 20)
}

func TestDistanceMeters_InvalidLatitude(t *testing.T) {
	bad := Point{Latitude: 91, Longitude: 0}
	_, err := DistanceMeters(bad, Point{})
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidCoordinates, kind)
}

func TestDistanceMeters_InvalidAccuracy(t *testing.T) {
	acc := 5000.0
	bad := Point{Latitude: 1, Longitude: 1, Accuracy: &acc}
	_, err := DistanceMeters(bad, Point{})
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidCoordinates, kind)
}
