package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// MemRepository is an in-process Repository guarded by per-entry locks,
// used in tests; the serve and sweep-once commands use the Postgres
// repository.
type MemRepository struct {
	mu      sync.Mutex
	entries map[string]*Entry
	locks   map[string]*sync.Mutex
}

// NewMemRepository returns an empty in-memory Repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		entries: make(map[string]*Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *MemRepository) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

func (r *MemRepository) Create(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *MemRepository) Get(_ context.Context, id string) (*Entry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, cerrors.New(cerrors.KindQueueNotFound, "queue entry not found")
	}
	cp := *e
	return &cp, nil
}

func (r *MemRepository) UpdateStatus(_ context.Context, id string, expectedStatus Status, mutate func(*Entry)) (*Entry, bool, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false, cerrors.New(cerrors.KindQueueNotFound, "queue entry not found")
	}
	if e.Status != expectedStatus {
		cp := *e
		return &cp, false, nil
	}

	mutate(e)

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	cp := *e
	return &cp, true, nil
}

func (r *MemRepository) UpdatePosition(_ context.Context, id string, position, estimatedWaitMinutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return cerrors.New(cerrors.KindQueueNotFound, "queue entry not found")
	}
	e.Position = position
	e.EstimatedWaitMinutes = estimatedWaitMinutes
	return nil
}

func (r *MemRepository) ActiveByUserAndVenue(_ context.Context, userID, venueID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID && e.VenueID == venueID && e.IsActive() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepository) ActiveByUser(_ context.Context, userID string) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.UserID == userID && e.IsActive() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemRepository) ActiveByVenue(_ context.Context, venueID string) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.VenueID == venueID && e.IsActive() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemRepository) PendingVerifications(_ context.Context, venueID string) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.VenueID == venueID && e.Status == StatusPendingVerification {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Suspicious != out[j].Suspicious {
			return out[i].Suspicious
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemRepository) NotifiedBefore(_ context.Context, cutoff time.Time) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Status == StatusNotified && e.NotifiedAt != nil && !e.NotifiedAt.After(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemRepository) PendingVerificationBefore(_ context.Context, cutoff time.Time) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Status == StatusPendingVerification && e.CheckInAttemptedAt != nil && !e.CheckInAttemptedAt.After(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
