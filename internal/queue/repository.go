package queue

import (
	"context"
	"time"
)

// Repository is the persistence contract the orchestrator drives entries
// through. Implementations must serialize writes per entry (§5 "per-entry
// mutex or compare-and-set on status").
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	// UpdateStatus atomically applies mutate to the entry identified by id
	// only if its current status equals expectedStatus, returning the
	// updated entry and a boolean reporting whether expectedStatus still
	// held. Implementations use a transaction or a conditional update
	// (`WHERE status = $expected`) so concurrent transitions on the same
	// entry serialize per §5.
	UpdateStatus(ctx context.Context, id string, expectedStatus Status, mutate func(*Entry)) (*Entry, bool, error)
	UpdatePosition(ctx context.Context, id string, position, estimatedWaitMinutes int) error
	ActiveByUserAndVenue(ctx context.Context, userID, venueID string) (*Entry, error)
	ActiveByUser(ctx context.Context, userID string) ([]*Entry, error)
	ActiveByVenue(ctx context.Context, venueID string) ([]*Entry, error)
	PendingVerifications(ctx context.Context, venueID string) ([]*Entry, error)
	NotifiedBefore(ctx context.Context, cutoff time.Time) ([]*Entry, error)
	PendingVerificationBefore(ctx context.Context, cutoff time.Time) ([]*Entry, error)
}
