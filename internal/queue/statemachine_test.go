package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

func TestValidateTransition_AllowsDocumentedPaths(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusWaiting, StatusNotified},
		{StatusWaiting, StatusNoShow},
		{StatusNotified, StatusPendingVerification},
		{StatusNotified, StatusNearby},
		{StatusNotified, StatusNoShow},
		{StatusPendingVerification, StatusNearby},
		{StatusPendingVerification, StatusNotified},
		{StatusPendingVerification, StatusNoShow},
		{StatusNearby, StatusInProgress},
		{StatusNearby, StatusNoShow},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusNoShow},
	}
	for _, c := range cases {
		assert.NoError(t, validateTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidateTransition_RejectsSkippingStates(t *testing.T) {
	// spec.md §8 scenario 4: waiting -> in-progress must be rejected, not
	// silently accepted as a shortcut through the lifecycle.
	err := validateTransition(StatusWaiting, StatusInProgress)
	require.Error(t, err)

	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidStatusTransition, kind)
}

func TestValidateTransition_RejectsLeavingTerminalStates(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusNoShow} {
		err := validateTransition(from, StatusWaiting)
		assert.Error(t, err, "terminal status %s must reject every transition", from)
	}
}

func TestValidateTransition_ErrorDetailsListValidStatuses(t *testing.T) {
	err := validateTransition(StatusWaiting, StatusCompleted)
	var cerr *cerrors.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ValidStatuses(StatusWaiting), cerr.Details["validStatuses"])
	assert.Equal(t, string(StatusWaiting), cerr.Details["from"])
	assert.Equal(t, string(StatusCompleted), cerr.Details["to"])
}

func TestValidStatuses_TerminalStatesHaveNone(t *testing.T) {
	assert.Empty(t, ValidStatuses(StatusCompleted))
	assert.Empty(t, ValidStatuses(StatusNoShow))
}
