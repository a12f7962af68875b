package queue

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitline/queuecoord/internal/audit"
	"github.com/waitline/queuecoord/internal/clock"
	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/notify"
	"github.com/waitline/queuecoord/internal/reputation"
	"github.com/waitline/queuecoord/internal/verification"
)

const (
	testVenueID = "venue-1"
	testOwnerID = "owner-1"
	testUserID  = "user-1"
)

type stubVenueReader struct {
	venue *Venue
}

func (s stubVenueReader) Get(_ context.Context, venueID string) (*Venue, error) {
	if s.venue == nil || s.venue.ID != venueID {
		return nil, nil
	}
	return s.venue, nil
}

type stubUserReader struct{ user *User }

func (s stubUserReader) Get(_ context.Context, userID string) (*User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, nil
	}
	return s.user, nil
}

type stubNotifier struct{ calls int }

func (s *stubNotifier) Notify(_ context.Context, _ string, _ notify.Recipient, _ notify.Kind, _ notify.TemplateData) bool {
	s.calls++
	return true
}

// newTestService wires a Service against in-memory collaborators, the same
// shape composition.go uses for a live deployment, driven by a clock.Fake
// so tests control elapsed time explicitly instead of racing the wall
// clock against the verification engine's "faster than expected arrival"
// suspicious check (§4.C).
func newTestService(t *testing.T, venue *Venue) (*Service, Repository, *stubNotifier, *clock.Fake) {
	t.Helper()
	repo := NewMemRepository()
	repStore := reputation.NewMemStore(nil)
	auditMem := audit.NewMemWriter()
	history := NewVerificationHistory(repo, auditMem)
	verifier := verification.New(repStore, history)
	notifier := &stubNotifier{}
	fc := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(
		repo, repStore, verifier,
		audit.NewLoggingWriter(auditMem, zerolog.Nop()),
		notifier,
		nil, // broadcaster: nil is a valid no-op per Service's nil checks
		stubVenueReader{venue: venue},
		stubUserReader{user: &User{ID: testUserID, Phone: "+15555550100", Name: "Test User"}},
		fc.Now,
		zerolog.Nop(),
	)
	return svc, repo, notifier, fc
}

func mustEnrol(t *testing.T, svc *Service) *Entry {
	t.Helper()
	entry, err := svc.Enrol(context.Background(), testUserID, testVenueID, []string{"svc-1"}, decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	return entry
}

// notifyAndAdvance notifies the entry then advances the fake clock well
// past the 2-minute "too fast" suspicious-check-in threshold, so a
// subsequent check-in is judged purely on distance and reputation tier.
func notifyAndAdvance(t *testing.T, svc *Service, fc *clock.Fake, entryID string) {
	t.Helper()
	_, err := svc.Notify(context.Background(), entryID, testOwnerID, 15)
	require.NoError(t, err)
	fc.Advance(5 * time.Minute)
}

func TestUpdateStatus_InvalidTransitionReturns409Kind(t *testing.T) {
	// spec.md §8 scenario 4: an entry still waiting cannot jump straight
	// to in-progress.
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, _, _, _ := newTestService(t, venue)
	entry := mustEnrol(t, svc)

	_, err := svc.UpdateStatus(context.Background(), entry.ID, StatusInProgress, Actor{UserID: testOwnerID, Role: "venue_owner"}, "")
	require.Error(t, err)

	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidStatusTransition, kind)
}

func TestSweepNoShow_IsIdempotentOnDoubleCall(t *testing.T) {
	// spec.md §8: a second no-show sweep on an already-no-show entry must
	// not double-apply the reputation penalty; it fails with
	// InvalidStatusTransition instead.
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, repo, _, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	notifyAndAdvance(t, svc, fc, entry.ID)

	require.NoError(t, svc.SweepNoShow(context.Background(), entry.ID, "did not arrive in time"))

	final, err := repo.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, final.Status)

	rec, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	scoreAfterFirstSweep := rec.Score

	// A retried sweep on a terminal entry is rejected by the state
	// machine (no-show has no outgoing transitions), so the reputation
	// ledger is never touched twice for the same event.
	err = svc.SweepNoShow(context.Background(), entry.ID, "did not arrive in time")
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidStatusTransition, kind)

	rec, err = svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, scoreAfterFirstSweep, rec.Score, "no-show penalty must not apply twice")
}

func TestCheckIn_HappyPathAutoApprovalAppliesReputationDelta(t *testing.T) {
	// spec.md §8: a check-in within the tier's auto-approval radius
	// transitions straight to nearby and credits the reputation delta
	// for ActionSuccessfulCheckIn.
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 40.0, Longitude: -73.0}
	svc, repo, _, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)

	before, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	scoreBefore := before.Score

	notifyAndAdvance(t, svc, fc, entry.ID)

	result, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 40.0, Longitude: -73.0})
	require.NoError(t, err)
	require.True(t, result.Decision.AutoApproved)
	assert.Equal(t, StatusNearby, result.TransitionedTo)
	assert.Equal(t, StatusNearby, result.Entry.Status)
	assert.NotNil(t, result.Entry.VerifiedAt)
	require.NotNil(t, result.Entry.VerificationMethod)
	assert.Equal(t, VerificationGPSAuto, *result.Entry.VerificationMethod)

	final, err := repo.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNearby, final.Status)

	after, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Greater(t, after.Score, scoreBefore, "successful auto-approved check-in must credit reputation")
}

func TestCheckIn_RejectsWhenNotNotified(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, _, _, _ := newTestService(t, venue)
	entry := mustEnrol(t, svc)

	_, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 0, Longitude: 0})
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidStatusTransition, kind)
}

func TestCheckIn_OutsideAutoRadiusRoutesToPendingVerification(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 40.0, Longitude: -73.0}
	svc, repo, _, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	notifyAndAdvance(t, svc, fc, entry.ID)

	// ~600m away: inside the review radius but outside auto-approval, so
	// it lands in pending_verification rather than nearby or rejected.
	result, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 40.0054, Longitude: -73.0})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingVerification, result.TransitionedTo)
	assert.False(t, result.Entry.Suspicious)

	pending, err := svc.PendingVerificationsForVenue(context.Background(), testVenueID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.ID, pending[0].ID)

	final, err := repo.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingVerification, final.Status)
}

func TestVerifyArrival_RejectionAppliesAdminOverridePenalty(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 40.0, Longitude: -73.0}
	svc, _, _, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	notifyAndAdvance(t, svc, fc, entry.ID)
	_, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 40.0054, Longitude: -73.0})
	require.NoError(t, err)

	before, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)

	updated, err := svc.VerifyArrival(context.Background(), entry.ID, testOwnerID, false, "camera shows no one there")
	require.NoError(t, err)
	assert.Equal(t, StatusNotified, updated.Status)

	after, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Less(t, after.Score, before.Score, "a rejected verify-arrival must penalize reputation")
}

func TestVerifyArrival_ConfirmationTransitionsToNearbyWithoutPenalty(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 40.0, Longitude: -73.0}
	svc, _, _, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	notifyAndAdvance(t, svc, fc, entry.ID)
	_, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 40.0054, Longitude: -73.0})
	require.NoError(t, err)

	before, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)

	updated, err := svc.VerifyArrival(context.Background(), entry.ID, testOwnerID, true, "confirmed on camera")
	require.NoError(t, err)
	assert.Equal(t, StatusNearby, updated.Status)
	require.NotNil(t, updated.VerifiedByAdminID)
	assert.Equal(t, testOwnerID, *updated.VerifiedByAdminID)

	after, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, before.Score, after.Score)
}

func TestEnrol_RejectsSecondActiveEntryForSameUserAndVenue(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, _, _, _ := newTestService(t, venue)
	mustEnrol(t, svc)

	_, err := svc.Enrol(context.Background(), testUserID, testVenueID, []string{"svc-1"}, decimal.NewFromInt(10), nil)
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindAlreadyInQueue, kind)
}

func TestUpdateStatus_RejectsNonOwnerDrivingOperatorTransition(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, _, _, _ := newTestService(t, venue)
	entry := mustEnrol(t, svc)

	_, err := svc.UpdateStatus(context.Background(), entry.ID, StatusNotified, Actor{UserID: "not-the-owner", Role: "venue_owner"}, "")
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindNotVenueOwner, kind)
}

func TestCompletedService_DispatchesNotificationAndCreditsReputation(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 40.0, Longitude: -73.0}
	svc, _, notifier, fc := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	notifyAndAdvance(t, svc, fc, entry.ID)
	_, err := svc.CheckIn(context.Background(), entry.ID, testUserID, &Location{Latitude: 40.0, Longitude: -73.0})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), entry.ID, StatusInProgress, Actor{UserID: testOwnerID, Role: "venue_owner"}, "")
	require.NoError(t, err)

	before, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)

	callsBefore := notifier.calls
	updated, err := svc.UpdateStatus(context.Background(), entry.ID, StatusCompleted, Actor{UserID: testOwnerID, Role: "venue_owner"}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Greater(t, notifier.calls, callsBefore, "completing service must dispatch a notification")

	after, err := svc.reputation.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Greater(t, after.Score, before.Score)
}

func TestCancelByCustomer_RejectsAlreadyTerminalEntry(t *testing.T) {
	venue := &Venue{ID: testVenueID, OwnerUserID: testOwnerID, Latitude: 0, Longitude: 0}
	svc, _, _, _ := newTestService(t, venue)
	entry := mustEnrol(t, svc)
	require.NoError(t, svc.SweepNoShow(context.Background(), entry.ID, "timed out"))

	_, err := svc.CancelByCustomer(context.Background(), entry.ID, Actor{UserID: testUserID, Role: "customer"})
	require.Error(t, err)
	kind, ok := cerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, cerrors.KindInvalidStatusTransition, kind)
}
