package queue

import (
	"context"
	"time"

	"github.com/waitline/queuecoord/internal/audit"
	"github.com/waitline/queuecoord/internal/verification"
)

// CheckInHistoryReader is the narrow read path the verification engine
// needs into the audit trail, satisfied by audit.MemWriter in-process and
// by the postgres checkin_logs repository in production.
type CheckInHistoryReader interface {
	CheckInsForUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]audit.CheckInLog, error)
}

// verificationHistory adapts this package's Repository and audit history
// reader to the verification.History interface, keeping the verification
// package free of any dependency on queue or audit types.
type verificationHistory struct {
	checkIns CheckInHistoryReader
	repo     Repository
}

func (h *verificationHistory) RecentCheckIns(ctx context.Context, userID string, limit int, since time.Time) ([]verification.PriorCheckIn, error) {
	logs, err := h.checkIns.CheckInsForUserSince(ctx, userID, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]verification.PriorCheckIn, 0, len(logs))
	for _, l := range logs {
		if l.UserLocation == nil {
			continue
		}
		out = append(out, verification.PriorCheckIn{
			Latitude:  l.UserLocation.Latitude,
			Longitude: l.UserLocation.Longitude,
			At:        l.Timestamp,
		})
	}
	return out, nil
}

func (h *verificationHistory) ActiveEntriesForUser(ctx context.Context, userID string) ([]verification.ActiveEntry, error) {
	entries, err := h.repo.ActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]verification.ActiveEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, verification.ActiveEntry{VenueID: e.VenueID})
	}
	return out, nil
}
