package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/waitline/queuecoord/internal/audit"
	"github.com/waitline/queuecoord/internal/channel/realtime"
	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/notify"
	"github.com/waitline/queuecoord/internal/reputation"
	"github.com/waitline/queuecoord/internal/verification"
)

// Notifier is the subset of notify.Dispatcher the orchestrator needs.
type Notifier interface {
	Notify(ctx context.Context, queueID string, recipient notify.Recipient, kind notify.Kind, data notify.TemplateData) bool
}

// Service is the Queue Service Orchestrator of §4.K.
type Service struct {
	repo        Repository
	reputation  reputation.Store
	verifier    *verification.Engine
	auditWriter *audit.LoggingWriter
	notifier    Notifier
	broadcaster RealtimeBroadcaster
	venues      VenueReader
	users       UserReader
	now         func() time.Time
	log         zerolog.Logger
}

// NewService builds the orchestrator with all of its collaborators.
func NewService(
	repo Repository,
	rep reputation.Store,
	verifier *verification.Engine,
	auditWriter *audit.LoggingWriter,
	notifier Notifier,
	broadcaster RealtimeBroadcaster,
	venues VenueReader,
	users UserReader,
	now func() time.Time,
	log zerolog.Logger,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo, reputation: rep, verifier: verifier, auditWriter: auditWriter,
		notifier: notifier, broadcaster: broadcaster, venues: venues, users: users, now: now, log: log,
	}
}

// NewVerificationHistory wires a Repository and CheckInHistoryReader into
// a verification.History, for callers constructing the verification.Engine.
func NewVerificationHistory(repo Repository, checkIns CheckInHistoryReader) verification.History {
	return &verificationHistory{checkIns: checkIns, repo: repo}
}

// Enrol creates a waiting entry for (userID, venueID), per §4.K. Rejects
// if an active entry already exists for the pair.
func (s *Service) Enrol(ctx context.Context, userID, venueID string, serviceIDs []string, totalPrice decimal.Decimal, appliedOfferIDs []string) (*Entry, error) {
	existing, err := s.repo.ActiveByUserAndVenue(ctx, userID, venueID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, cerrors.New(cerrors.KindAlreadyInQueue, "you already have an active entry at this venue")
	}

	entry := &Entry{
		ID:              uuid.NewString(),
		VenueID:         venueID,
		UserID:          userID,
		ServiceIDs:      serviceIDs,
		TotalPrice:      totalPrice,
		AppliedOfferIDs: appliedOfferIDs,
		CreatedAt:       s.now(),
		Status:          StatusWaiting,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.RecomputePositions(ctx, venueID)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToVenueOwners(venueID, realtime.NewFrame("queue_update", map[string]interface{}{
			"venueId": venueID,
			"data":    map[string]interface{}{"reason": "enrolled", "queueId": entry.ID},
		}))
	}

	return s.repo.Get(ctx, entry.ID)
}

// Notify performs the waiting->notified transition, admin only, per §4.K.
func (s *Service) Notify(ctx context.Context, queueID string, adminUserID string, windowMinutes int) (*Entry, error) {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVenueOwner(ctx, entry.VenueID, adminUserID); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, entry, StatusNotified, Actor{UserID: adminUserID, Role: "venue_owner"}, "notified by operator", func(e *Entry) {
		now := s.now()
		e.NotifiedAt = &now
		e.NotificationWindowMinutes = &windowMinutes
	})
	if err != nil {
		return nil, err
	}

	venue, _ := s.venues.Get(ctx, entry.VenueID)
	user, _ := s.users.Get(ctx, entry.UserID)

	venueName, venueAddress := "", ""
	var venueLoc map[string]interface{}
	if venue != nil {
		venueName, venueAddress = venue.Name, venue.Address
		venueLoc = map[string]interface{}{"latitude": venue.Latitude, "longitude": venue.Longitude}
	}

	recipient := notify.Recipient{UserID: entry.UserID}
	if user != nil {
		recipient.Phone = user.Phone
	}

	s.notifier.Notify(ctx, queueID, recipient, notify.KindQueueNotification, notify.TemplateData{
		VenueName:        venueName,
		VenueAddress:     venueAddress,
		EstimatedMinutes: windowMinutes,
		ServiceNames:     updated.ServiceIDs,
	})

	if s.broadcaster != nil {
		s.broadcaster.Send(entry.UserID, realtime.NewFrame("queue_notification", map[string]interface{}{
			"queueId":          queueID,
			"venueId":          entry.VenueID,
			"venueName":        venueName,
			"venueAddress":     venueAddress,
			"estimatedMinutes": windowMinutes,
			"services":         updated.ServiceIDs,
			"venueLocation":    venueLoc,
		}))
		s.broadcaster.BroadcastToVenueOwners(entry.VenueID, realtime.NewFrame("queue_update", map[string]interface{}{
			"venueId": entry.VenueID,
			"data":    map[string]interface{}{"reason": "notified", "queueId": queueID},
		}))
	}

	return updated, nil
}

// CheckInResult is the outcome of a check-in attempt, per §4.K.
type CheckInResult struct {
	Entry          *Entry
	Decision       verification.Decision
	TransitionedTo Status
}

// CheckIn records a check-in attempt and routes the entry to nearby,
// pending_verification, or leaves it notified, per §4.K.
func (s *Service) CheckIn(ctx context.Context, queueID, userID string, location *Location) (*CheckInResult, error) {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, cerrors.New(cerrors.KindNotQueueOwner, "this queue entry does not belong to you")
	}
	if entry.Status != StatusNotified {
		return nil, cerrors.New(cerrors.KindInvalidStatusTransition, "check-in is only allowed once notified").
			WithDetails(map[string]interface{}{"currentStatus": string(entry.Status)})
	}

	venue, err := s.venues.Get(ctx, entry.VenueID)
	if err != nil {
		return nil, err
	}
	if venue == nil {
		return nil, cerrors.New(cerrors.KindVenueNotFound, "venue not found")
	}

	attemptedAt := s.now()
	var geoLoc *geoPoint
	if location != nil {
		geoLoc = &geoPoint{Latitude: location.Latitude, Longitude: location.Longitude, Accuracy: location.Accuracy}
	}

	decision, err := s.verifier.Evaluate(ctx, verification.Input{
		UserID:        userID,
		QueueID:       queueID,
		UserLocation:  geoLoc.toGeo(),
		VenueLocation: geoPoint{Latitude: venue.Latitude, Longitude: venue.Longitude}.toGeoValue(),
		NotifiedAt:    entry.NotifiedAt,
		AttemptedAt:   attemptedAt,
	})
	if err != nil {
		return nil, err
	}

	var timeSinceNotificationMs *int64
	if entry.NotifiedAt != nil {
		ms := attemptedAt.Sub(*entry.NotifiedAt).Milliseconds()
		timeSinceNotificationMs = &ms
	}

	checkInLog := audit.CheckInLog{
		ID:                      uuid.NewString(),
		QueueID:                 queueID,
		UserID:                  userID,
		VenueID:                 entry.VenueID,
		Timestamp:               attemptedAt,
		VenueLocation:           audit.Location{Latitude: venue.Latitude, Longitude: venue.Longitude},
		DistanceMeters:          decision.DistanceMeters,
		AutoApproved:            decision.AutoApproved,
		RequiresConfirmation:    decision.RequiresReview,
		Success:                 decision.Verified,
		Reason:                  decision.Reason,
		Suspicious:              decision.Suspicious,
		SuspiciousReasons:       decision.SuspiciousReasons,
		TimeSinceNotificationMs: timeSinceNotificationMs,
	}
	if location != nil {
		checkInLog.UserLocation = &audit.Location{Latitude: location.Latitude, Longitude: location.Longitude, Accuracy: location.Accuracy}
	}

	result := &CheckInResult{Entry: entry, Decision: decision}

	setAttempt := func(e *Entry) {
		e.CheckInAttemptedAt = &attemptedAt
		e.CheckInLocation = location
		e.CheckInDistanceMeters = decision.DistanceMeters
	}

	switch {
	case decision.Verified && decision.AutoApproved:
		method := VerificationGPSAuto
		updated, err := s.transition(ctx, entry, StatusNearby, Actor{UserID: userID, Role: "customer"}, "auto-approved check-in", func(e *Entry) {
			setAttempt(e)
			now := s.now()
			e.VerifiedAt = &now
			e.VerificationMethod = &method
		})
		if err != nil {
			return nil, err
		}
		result.Entry = updated
		result.TransitionedTo = StatusNearby
		checkInLog.Method = "gps_auto"
		s.auditWriter.WriteCheckIn(ctx, checkInLog)
		_, _ = s.reputation.Apply(ctx, userID, reputation.ActionSuccessfulCheckIn, queueID+"|successful_checkin")
		s.broadcastCustomerArrived(ctx, entry, true, decision.DistanceMeters, false)

	case decision.Verified && decision.RequiresReview:
		updated, err := s.transition(ctx, entry, StatusPendingVerification, Actor{UserID: userID, Role: "customer"}, decision.Reason, func(e *Entry) {
			setAttempt(e)
			e.Suspicious = decision.Suspicious
		})
		if err != nil {
			return nil, err
		}
		result.Entry = updated
		result.TransitionedTo = StatusPendingVerification
		checkInLog.Method = "manual"
		s.auditWriter.WriteCheckIn(ctx, checkInLog)
		s.broadcastCustomerArrived(ctx, entry, false, decision.DistanceMeters, true)

	default:
		checkInLog.Method = "manual"
		s.auditWriter.WriteCheckIn(ctx, checkInLog)
		result.TransitionedTo = entry.Status
	}

	return result, nil
}

func (s *Service) broadcastCustomerArrived(ctx context.Context, entry *Entry, verified bool, distance *int, requiresConfirmation bool) {
	if s.broadcaster == nil {
		return
	}
	user, _ := s.users.Get(ctx, entry.UserID)
	userName, userPhone := "", ""
	if user != nil {
		userName, userPhone = user.Name, user.Phone
	}
	s.broadcaster.BroadcastToVenueOwners(entry.VenueID, realtime.NewFrame("customer_arrived", map[string]interface{}{
		"venueId":              entry.VenueID,
		"queueId":              entry.ID,
		"userId":               entry.UserID,
		"userName":             userName,
		"userPhone":            userPhone,
		"verified":             verified,
		"distance":             distance,
		"requiresConfirmation": requiresConfirmation,
	}))
}

// VerifyArrival is the admin's operator-override decision on a
// pending_verification entry, per §4.K.
func (s *Service) VerifyArrival(ctx context.Context, queueID, adminUserID string, confirmed bool, notes string) (*Entry, error) {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVenueOwner(ctx, entry.VenueID, adminUserID); err != nil {
		return nil, err
	}
	if entry.Status != StatusPendingVerification {
		return nil, cerrors.New(cerrors.KindInvalidStatusTransition, "verify-arrival is only allowed while pending verification").
			WithDetails(map[string]interface{}{"currentStatus": string(entry.Status)})
	}

	now := s.now()
	target := StatusNotified
	if confirmed {
		target = StatusNearby
	}

	method := VerificationAdminOverride
	updated, err := s.transition(ctx, entry, target, Actor{UserID: adminUserID, Role: "venue_owner"}, notes, func(e *Entry) {
		if confirmed {
			e.VerifiedAt = &now
			e.VerificationMethod = &method
			e.VerifiedByAdminID = &adminUserID
		}
	})
	if err != nil {
		return nil, err
	}

	s.auditWriter.WriteCheckIn(ctx, audit.CheckInLog{
		ID:            uuid.NewString(),
		QueueID:       queueID,
		UserID:        entry.UserID,
		VenueID:       entry.VenueID,
		Timestamp:     now,
		VenueLocation: audit.Location{},
		Method:        "admin_override",
		Success:       confirmed,
		Reason:        notes,
	})

	// Open question (admin rejection reputation) resolved per §9: the
	// admin_override penalty applies only when an operator rejects a
	// pending_verification; confirmation carries no penalty.
	if !confirmed {
		_, _ = s.reputation.Apply(ctx, entry.UserID, reputation.ActionAdminOverride, queueID+"|admin_override_rejected")
	}

	return updated, nil
}

// UpdateStatus routes a caller-driven transition through the state
// machine, per §4.K authorization table.
func (s *Service) UpdateStatus(ctx context.Context, queueID string, newStatus Status, actor Actor, notes string) (*Entry, error) {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeUpdateStatus(ctx, entry, newStatus, actor); err != nil {
		return nil, err
	}

	return s.transition(ctx, entry, newStatus, actor, notes, nil)
}

func (s *Service) authorizeUpdateStatus(ctx context.Context, entry *Entry, newStatus Status, actor Actor) error {
	switch newStatus {
	case StatusNotified, StatusInProgress, StatusCompleted, StatusNoShow:
		return s.requireVenueOwner(ctx, entry.VenueID, actor.UserID)
	case StatusPendingVerification, StatusNearby:
		if entry.UserID != actor.UserID {
			return cerrors.New(cerrors.KindNotQueueOwner, "only the customer may request this transition")
		}
		return nil
	default:
		return cerrors.New(cerrors.KindForbidden, "unsupported status transition")
	}
}

// SweepNoShow is invoked by the no-show sweeper (§4.J) to move a stalled
// notified entry to no-show with a fixed system reason.
func (s *Service) SweepNoShow(ctx context.Context, queueID, reason string) error {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return err
	}
	_, err = s.transition(ctx, entry, StatusNoShow, Actor{Role: "system"}, reason, func(e *Entry) {
		now := s.now()
		e.NoShowMarkedAt = &now
		e.NoShowReason = &reason
	})
	return err
}

// SweepRevertPendingVerification is invoked by the pending-verification
// timeout sweeper (§4.J); no reputation change.
func (s *Service) SweepRevertPendingVerification(ctx context.Context, queueID string) error {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return err
	}
	_, err = s.transition(ctx, entry, StatusNotified, Actor{Role: "system"}, "pending verification timed out", nil)
	return err
}

// CancelByCustomer withdraws the caller's own non-terminal entry, per
// the DELETE /queues/{id} endpoint of §6. Customers may cancel at any
// point before service starts; StatusNoShow otherwise requires venue
// ownership, so this bypasses authorizeUpdateStatus with its own
// narrower check rather than routing through UpdateStatus.
func (s *Service) CancelByCustomer(ctx context.Context, queueID string, actor Actor) (*Entry, error) {
	entry, err := s.requireEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != actor.UserID {
		return nil, cerrors.New(cerrors.KindNotQueueOwner, "only the customer may cancel their own entry")
	}
	if entry.Status.IsTerminal() {
		return nil, cerrors.New(cerrors.KindInvalidStatusTransition, "entry has already reached a terminal status").
			WithDetails(map[string]interface{}{"currentStatus": string(entry.Status)})
	}
	if entry.Status == StatusInProgress {
		return nil, cerrors.New(cerrors.KindInvalidStatusTransition, "service has already started").
			WithDetails(map[string]interface{}{"currentStatus": string(entry.Status)})
	}
	reason := "cancelled by customer"
	return s.transition(ctx, entry, StatusNoShow, actor, reason, func(e *Entry) {
		now := s.now()
		e.NoShowMarkedAt = &now
		e.NoShowReason = &reason
	})
}

// PendingVerificationsForVenue lists entries awaiting an operator's
// confirm/reject decision, for the GET /venues/{id}/pending-verifications
// endpoint of §6.
func (s *Service) PendingVerificationsForVenue(ctx context.Context, venueID string) ([]*Entry, error) {
	return s.repo.PendingVerifications(ctx, venueID)
}

// RecomputePositions implements §4.I for a venue: loads active entries,
// recomputes contiguous positions, persists the changes, and broadcasts
// queue_position_update to every affected connected client.
func (s *Service) RecomputePositions(ctx context.Context, venueID string) {
	entries, err := s.repo.ActiveByVenue(ctx, venueID)
	if err != nil {
		s.log.Error().Err(err).Str("venue_id", venueID).Msg("queue: failed to load active entries for position recompute")
		return
	}

	RecomputePositions(entries)

	list := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		if err := s.repo.UpdatePosition(ctx, e.ID, e.Position, e.EstimatedWaitMinutes); err != nil {
			s.log.Error().Err(err).Str("queue_id", e.ID).Msg("queue: failed to persist recomputed position")
		}
		list = append(list, map[string]interface{}{
			"id":                   e.ID,
			"userId":               e.UserID,
			"position":             e.Position,
			"status":               string(e.Status),
			"estimatedWaitMinutes": e.EstimatedWaitMinutes,
		})
	}

	if s.broadcaster == nil {
		return
	}
	frame := realtime.NewFrame("queue_position_update", map[string]interface{}{
		"venueId": venueID,
		"queues":  list,
	})
	for _, e := range entries {
		s.broadcaster.Send(e.UserID, frame)
	}
}

// --- internal helpers ---

func (s *Service) requireEntry(ctx context.Context, queueID string) (*Entry, error) {
	if queueID == "" {
		return nil, cerrors.New(cerrors.KindInvalidQueueId, "queueId is required")
	}
	entry, err := s.repo.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) requireVenueOwner(ctx context.Context, venueID, userID string) error {
	venue, err := s.venues.Get(ctx, venueID)
	if err != nil {
		return err
	}
	if venue == nil {
		return cerrors.New(cerrors.KindVenueNotFound, "venue not found")
	}
	if venue.OwnerUserID != userID {
		return cerrors.New(cerrors.KindNotVenueOwner, "you do not own this venue")
	}
	return nil
}

const transitionRetries = 5

// transition validates and applies a status change, retrying against
// concurrent writers per §5 ("concurrent transitions for the same entry
// are linearizable"), then fires the entry-side-effects of §4.H.
func (s *Service) transition(ctx context.Context, entry *Entry, to Status, actor Actor, reason string, apply func(*Entry)) (*Entry, error) {
	for attempt := 0; attempt < transitionRetries; attempt++ {
		current, err := s.repo.Get(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if err := validateTransition(current.Status, to); err != nil {
			return nil, err
		}
		from := current.Status

		updated, ok, err := s.repo.UpdateStatus(ctx, entry.ID, from, func(e *Entry) {
			e.Status = to
			if apply != nil {
				apply(e)
			}
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		s.onEnter(ctx, updated, from, actor, reason)
		return updated, nil
	}
	return nil, cerrors.New(cerrors.KindInternalError, "too many conflicting transitions on this entry")
}

// onEnter fires the best-effort side effects of §4.H after the status
// field is already durable.
func (s *Service) onEnter(ctx context.Context, entry *Entry, from Status, actor Actor, reason string) {
	switch entry.Status {
	case StatusInProgress:
		s.dispatchLifecycle(ctx, entry, notify.KindServiceStarting)
	case StatusCompleted:
		_, _ = s.reputation.Apply(ctx, entry.UserID, reputation.ActionCompletedService, entry.ID+"|completed_service")
		s.dispatchLifecycle(ctx, entry, notify.KindServiceCompleted)
		s.RecomputePositions(ctx, entry.VenueID)
	case StatusNoShow:
		_, _ = s.reputation.Apply(ctx, entry.UserID, reputation.ActionNoShow, entry.ID+"|no_show")
		data := notify.TemplateData{}
		if entry.NoShowReason != nil {
			data.NoShowReason = *entry.NoShowReason
		}
		s.dispatchLifecycleData(ctx, entry, notify.KindNoShow, data)
		s.RecomputePositions(ctx, entry.VenueID)
	}

	s.log.Info().
		Str("queue_id", entry.ID).
		Str("from", string(from)).
		Str("to", string(entry.Status)).
		Str("actor", actor.UserID).
		Str("reason", reason).
		Msg("queue: transition applied")
}

func (s *Service) dispatchLifecycle(ctx context.Context, entry *Entry, kind notify.Kind) {
	s.dispatchLifecycleData(ctx, entry, kind, notify.TemplateData{})
}

func (s *Service) dispatchLifecycleData(ctx context.Context, entry *Entry, kind notify.Kind, data notify.TemplateData) {
	venue, _ := s.venues.Get(ctx, entry.VenueID)
	user, _ := s.users.Get(ctx, entry.UserID)
	if venue != nil {
		data.VenueName = venue.Name
		data.VenueAddress = venue.Address
	}
	recipient := notify.Recipient{UserID: entry.UserID}
	if user != nil {
		recipient.Phone = user.Phone
	}
	s.notifier.Notify(ctx, entry.ID, recipient, kind, data)
}
