// Package queue implements the Queue State Machine, Position Engine, and
// Queue Service Orchestrator of §4.H, §4.I and §4.K.
package queue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is one of the constrained lifecycle states of §3.
type Status string

const (
	StatusWaiting              Status = "waiting"
	StatusNotified             Status = "notified"
	StatusPendingVerification  Status = "pending_verification"
	StatusNearby               Status = "nearby"
	StatusInProgress           Status = "in-progress"
	StatusCompleted            Status = "completed"
	StatusNoShow               Status = "no-show"
)

// IsTerminal reports whether status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusNoShow
}

// VerificationMethod records how an entry reached nearby.
type VerificationMethod string

const (
	VerificationGPSAuto       VerificationMethod = "gps_auto"
	VerificationManual        VerificationMethod = "manual"
	VerificationAdminOverride VerificationMethod = "admin_override"
)

// Actor identifies who drove a transition, for audit records.
type Actor struct {
	UserID string
	Role   string // "customer", "venue_owner", "system"
}

// Location mirrors geo.Point without importing it, matching audit's
// decoupled Location so persistence layers stay dependency-light.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// Entry is one customer's enrolment in a venue's queue, per §3.
type Entry struct {
	ID       string
	VenueID  string
	UserID   string

	ServiceIDs      []string
	TotalPrice      decimal.Decimal
	AppliedOfferIDs []string

	Position             int
	EstimatedWaitMinutes int
	CreatedAt            time.Time

	NotifiedAt                *time.Time
	NotificationWindowMinutes *int
	CheckInAttemptedAt        *time.Time
	CheckInLocation           *Location
	CheckInDistanceMeters     *int
	VerifiedAt                *time.Time
	VerificationMethod        *VerificationMethod
	VerifiedByAdminID         *string
	ServiceStartedAt          *time.Time
	ServiceCompletedAt        *time.Time
	NoShowMarkedAt            *time.Time
	NoShowReason              *string

	// Suspicious marks an entry whose check-in attempt tripped the
	// verification engine's suspicious-pattern detection (§4.C), so
	// GET /venues/{id}/pending-verifications can surface it first.
	Suspicious bool

	Status Status
}

// IsActive reports whether the entry counts toward the at-most-one
// per (user, venue) invariant of §3: any non-terminal status.
func (e *Entry) IsActive() bool {
	return !e.Status.IsTerminal()
}
