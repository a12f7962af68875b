// Package verification implements the Arrival Verification Engine of
// §4.C: distance computation, trust-tiered auto-approval, and
// suspicious-pattern detection.
package verification

import (
	"context"
	"math"
	"time"

	"github.com/waitline/queuecoord/internal/geo"
	"github.com/waitline/queuecoord/internal/reputation"
)

// autoApprovalRadius maps reputation tier to the distance (meters) under
// which a check-in auto-approves, per §4.C step 2.
var autoApprovalRadius = map[reputation.Tier]int{
	reputation.TierNew:        50,
	reputation.TierRegular:    100,
	reputation.TierTrusted:    200,
	reputation.TierSuspicious: 0,
	reputation.TierBanned:     0,
}

const reviewRadiusMeters = 1000

// Input is everything the engine needs to reach a verdict.
type Input struct {
	UserID        string
	QueueID       string
	UserLocation  *geo.Point
	VenueLocation geo.Point
	NotifiedAt    *time.Time
	AttemptedAt   time.Time
}

// Decision is the engine's output, per §4.C.
type Decision struct {
	Verified         bool
	DistanceMeters   *int
	AutoApproved     bool
	RequiresReview   bool
	Reason           string
	Suspicious       bool
	SuspiciousReasons []string
}

// PriorCheckIn is the minimal shape the engine needs from history to
// detect the "repeated location" pattern.
type PriorCheckIn struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}

// ActiveEntry is the minimal shape the engine needs to detect the
// "multiple venues" pattern.
type ActiveEntry struct {
	VenueID string
}

// History supplies the data the suspicious-pattern checks read; the queue
// package supplies a concrete implementation backed by its repositories.
type History interface {
	RecentCheckIns(ctx context.Context, userID string, limit int, since time.Time) ([]PriorCheckIn, error)
	ActiveEntriesForUser(ctx context.Context, userID string) ([]ActiveEntry, error)
}

// Engine evaluates check-in attempts against reputation and history.
type Engine struct {
	reputation reputation.Store
	history    History
}

// New builds a verification Engine.
func New(rep reputation.Store, history History) *Engine {
	return &Engine{reputation: rep, history: history}
}

// Evaluate runs the §4.C decision ladder.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	rep, err := e.reputation.Get(ctx, in.UserID)
	if err != nil {
		return Decision{}, err
	}

	if rep.Tier == reputation.TierBanned {
		return Decision{Verified: false, AutoApproved: false, RequiresReview: false, Reason: "banned"}, nil
	}

	if in.UserLocation == nil {
		return Decision{Verified: true, AutoApproved: false, RequiresReview: true, Reason: "no location provided"}, nil
	}

	distance, err := geo.DistanceMeters(*in.UserLocation, in.VenueLocation)
	if err != nil {
		return Decision{}, err
	}
	radius := autoApprovalRadius[rep.Tier]

	suspiciousReasons, err := e.detectSuspicious(ctx, in)
	if err != nil {
		return Decision{}, err
	}

	if len(suspiciousReasons) > 0 || rep.Tier == reputation.TierSuspicious {
		reason := "suspicious account"
		if len(suspiciousReasons) > 0 {
			reason = suspiciousReasons[0]
		}
		return Decision{
			Verified:          true,
			DistanceMeters:    &distance,
			AutoApproved:      false,
			RequiresReview:    true,
			Reason:            reason,
			Suspicious:        len(suspiciousReasons) > 0,
			SuspiciousReasons: suspiciousReasons,
		}, nil
	}

	if distance <= radius {
		return Decision{Verified: true, DistanceMeters: &distance, AutoApproved: true, RequiresReview: false, Reason: "within auto-approval radius"}, nil
	}

	if distance <= reviewRadiusMeters {
		return Decision{Verified: true, DistanceMeters: &distance, AutoApproved: false, RequiresReview: true, Reason: "outside auto range"}, nil
	}

	return Decision{Verified: false, DistanceMeters: &distance, AutoApproved: false, RequiresReview: false, Reason: "too far"}, nil
}

const suspiciousWindow = 30 * 24 * time.Hour

func (e *Engine) detectSuspicious(ctx context.Context, in Input) ([]string, error) {
	var reasons []string

	since := in.AttemptedAt.Add(-suspiciousWindow)
	recent, err := e.history.RecentCheckIns(ctx, in.UserID, 10, since)
	if err != nil {
		return nil, err
	}
	if repeatedLocation(recent) {
		reasons = append(reasons, "repeated check-in location")
	}

	if in.NotifiedAt != nil && in.AttemptedAt.Sub(*in.NotifiedAt) < 2*time.Minute {
		reasons = append(reasons, "check-in faster than expected arrival time")
	}

	active, err := e.history.ActiveEntriesForUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if distinctVenues(active) >= 2 {
		reasons = append(reasons, "active in multiple venues")
	}

	return reasons, nil
}

// repeatedLocation flags any (lat,long) rounded to 4 decimal places that
// recurs more than 3 times among the given entries, per §4.C.
func repeatedLocation(entries []PriorCheckIn) bool {
	counts := make(map[[2]float64]int)
	for _, e := range entries {
		key := [2]float64{round4(e.Latitude), round4(e.Longitude)}
		counts[key]++
		if counts[key] > 3 {
			return true
		}
	}
	return false
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func distinctVenues(entries []ActiveEntry) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.VenueID] = struct{}{}
	}
	return len(seen)
}
