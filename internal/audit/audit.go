// Package audit writes append-only CheckInLog and NotificationLog records.
// Writes are pure and best-effort: failures are logged but never raised to
// callers, per §4.D "audit must not block the main path".
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CheckInLog is one check-in attempt record, append-only per §3.
type CheckInLog struct {
	ID                      string
	QueueID                 string
	UserID                  string
	VenueID                 string
	Timestamp               time.Time
	UserLocation            *Location
	VenueLocation           Location
	DistanceMeters          *int
	Method                  string
	AutoApproved            bool
	RequiresConfirmation    bool
	Success                 bool
	Reason                  string
	Suspicious              bool
	SuspiciousReasons       []string
	TimeSinceNotificationMs *int64
}

// Location is a plain lat/long pair, decoupled from geo.Point so this
// package has no dependency on verification internals.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// NotificationLog is one notification dispatch record, append-only per §3.
type NotificationLog struct {
	ID        string
	QueueID   string
	UserID    string
	Timestamp time.Time
	Type      string
	Title     string
	Body      string
	Channels  map[string]ChannelResult
	Viewed    bool
	ViewedAt  *time.Time
}

// ChannelResult is the per-channel outcome recorded regardless of overall
// dispatch success, per §8 "exactly one NotificationLog... channel-result
// fields set".
type ChannelResult struct {
	Sent      bool
	SentAt    *time.Time
	Error     string
	Delivered bool
}

// Writer persists logs. Both methods are best-effort: a non-nil error is
// only ever logged by LoggingWriter, never returned to a caller up the stack.
type Writer interface {
	WriteCheckIn(ctx context.Context, log CheckInLog) error
	WriteNotification(ctx context.Context, log NotificationLog) error
}

// LoggingWriter wraps an underlying Writer and swallows its errors after
// logging them, so every call site in queue/notify packages can call
// audit writes fire-and-forget.
type LoggingWriter struct {
	next Writer
	log  zerolog.Logger
}

// NewLoggingWriter wraps next with failure logging.
func NewLoggingWriter(next Writer, log zerolog.Logger) *LoggingWriter {
	return &LoggingWriter{next: next, log: log}
}

func (w *LoggingWriter) WriteCheckIn(ctx context.Context, entry CheckInLog) {
	if err := w.next.WriteCheckIn(ctx, entry); err != nil {
		w.log.Error().Err(err).Str("queue_id", entry.QueueID).Msg("audit: failed to write check-in log")
	}
}

func (w *LoggingWriter) WriteNotification(ctx context.Context, entry NotificationLog) {
	if err := w.next.WriteNotification(ctx, entry); err != nil {
		w.log.Error().Err(err).Str("queue_id", entry.QueueID).Msg("audit: failed to write notification log")
	}
}
