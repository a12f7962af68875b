package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/waitline/queuecoord/internal/audit"
	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// AuditRepository implements audit.Writer plus the CheckInHistoryReader
// the verification engine needs, against the checkin_logs and
// notification_logs collections of §6.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository builds an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WriteCheckIn(ctx context.Context, log audit.CheckInLog) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var userLoc, suspiciousReasons []byte
	if log.UserLocation != nil {
		userLoc, _ = json.Marshal(log.UserLocation)
	}
	suspiciousReasons, _ = json.Marshal(log.SuspiciousReasons)
	venueLoc, _ := json.Marshal(log.VenueLocation)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkin_logs (
			id, queue_id, user_id, venue_id, timestamp, user_location, venue_location,
			distance_meters, method, auto_approved, requires_confirmation, success, reason,
			suspicious, suspicious_reasons, time_since_notification_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, log.ID, log.QueueID, log.UserID, log.VenueID, log.Timestamp, userLoc, venueLoc,
		log.DistanceMeters, log.Method, log.AutoApproved, log.RequiresConfirmation, log.Success, log.Reason,
		log.Suspicious, suspiciousReasons, log.TimeSinceNotificationMs)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to write check-in log", err)
	}
	return nil
}

func (r *AuditRepository) WriteNotification(ctx context.Context, log audit.NotificationLog) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	channels, _ := json.Marshal(log.Channels)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, queue_id, user_id, timestamp, type, title, body, channels, viewed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, log.ID, log.QueueID, log.UserID, log.Timestamp, log.Type, log.Title, log.Body, channels, log.Viewed)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to write notification log", err)
	}
	return nil
}

type checkInLogRow struct {
	ID                      string          `db:"id"`
	QueueID                 string          `db:"queue_id"`
	UserID                  string          `db:"user_id"`
	VenueID                 string          `db:"venue_id"`
	Timestamp               time.Time       `db:"timestamp"`
	UserLocation            json.RawMessage `db:"user_location"`
	VenueLocation           json.RawMessage `db:"venue_location"`
	DistanceMeters          sql.NullInt64   `db:"distance_meters"`
	Method                  string          `db:"method"`
	AutoApproved            bool            `db:"auto_approved"`
	RequiresConfirmation    bool            `db:"requires_confirmation"`
	Success                 bool            `db:"success"`
	Reason                  string          `db:"reason"`
	Suspicious              bool            `db:"suspicious"`
	SuspiciousReasons       json.RawMessage `db:"suspicious_reasons"`
	TimeSinceNotificationMs sql.NullInt64   `db:"time_since_notification_ms"`
}

// CheckInsForUserSince satisfies queue.CheckInHistoryReader.
func (r *AuditRepository) CheckInsForUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]audit.CheckInLog, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []checkInLogRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM checkin_logs
		WHERE user_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
		LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query check-in history", err)
	}

	out := make([]audit.CheckInLog, 0, len(rows))
	for _, row := range rows {
		entry := audit.CheckInLog{
			ID: row.ID, QueueID: row.QueueID, UserID: row.UserID, VenueID: row.VenueID,
			Timestamp: row.Timestamp, Method: row.Method, AutoApproved: row.AutoApproved,
			RequiresConfirmation: row.RequiresConfirmation, Success: row.Success, Reason: row.Reason,
			Suspicious: row.Suspicious,
		}
		if row.DistanceMeters.Valid {
			v := int(row.DistanceMeters.Int64)
			entry.DistanceMeters = &v
		}
		if row.TimeSinceNotificationMs.Valid {
			entry.TimeSinceNotificationMs = &row.TimeSinceNotificationMs.Int64
		}
		if len(row.UserLocation) > 0 {
			var loc audit.Location
			if err := json.Unmarshal(row.UserLocation, &loc); err == nil {
				entry.UserLocation = &loc
			}
		}
		if len(row.SuspiciousReasons) > 0 {
			_ = json.Unmarshal(row.SuspiciousReasons, &entry.SuspiciousReasons)
		}
		out = append(out, entry)
	}
	return out, nil
}
