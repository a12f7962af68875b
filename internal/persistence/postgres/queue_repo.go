package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/queue"
)

// QueueRepository persists queue.Entry, grounded on the teacher's
// internal/persistence/postgres trade-repo pattern (sqlx.DB + per-call
// timeout + pq.Error duplicate-key handling), generalized to this
// module's entry lifecycle instead of trade records.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository builds a QueueRepository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

type queueRow struct {
	ID                        string          `db:"id"`
	VenueID                   string          `db:"venue_id"`
	UserID                    string          `db:"user_id"`
	ServiceIDs                json.RawMessage `db:"service_ids"`
	TotalPrice                string          `db:"total_price"`
	AppliedOfferIDs           json.RawMessage `db:"applied_offer_ids"`
	Position                  int             `db:"position"`
	EstimatedWaitMinutes      int             `db:"estimated_wait_minutes"`
	CreatedAt                 sql.NullTime    `db:"created_at"`
	NotifiedAt                sql.NullTime    `db:"notified_at"`
	NotificationWindowMinutes sql.NullInt64   `db:"notification_window_minutes"`
	CheckInAttemptedAt        sql.NullTime    `db:"check_in_attempted_at"`
	CheckInLocation           json.RawMessage `db:"check_in_location"`
	CheckInDistanceMeters     sql.NullInt64   `db:"check_in_distance_meters"`
	VerifiedAt                sql.NullTime    `db:"verified_at"`
	VerificationMethod        sql.NullString  `db:"verification_method"`
	VerifiedByAdminID         sql.NullString  `db:"verified_by_admin_id"`
	ServiceStartedAt          sql.NullTime    `db:"service_started_at"`
	ServiceCompletedAt        sql.NullTime    `db:"service_completed_at"`
	NoShowMarkedAt            sql.NullTime    `db:"no_show_marked_at"`
	NoShowReason              sql.NullString  `db:"no_show_reason"`
	Suspicious                bool            `db:"suspicious"`
	Status                    string          `db:"status"`
}

func (r *QueueRepository) Create(ctx context.Context, e *queue.Entry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	serviceIDs, _ := json.Marshal(e.ServiceIDs)
	offers, _ := json.Marshal(e.AppliedOfferIDs)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO queues (id, venue_id, user_id, service_ids, total_price, applied_offer_ids, position, estimated_wait_minutes, created_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.VenueID, e.UserID, serviceIDs, e.TotalPrice.String(), offers, e.Position, e.EstimatedWaitMinutes, e.CreatedAt, string(e.Status))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == isUniqueViolation {
			return cerrors.New(cerrors.KindAlreadyInQueue, "an active entry already exists for this venue")
		}
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to create queue entry", err)
	}
	return nil
}

func (r *QueueRepository) Get(ctx context.Context, id string) (*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row queueRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM queues WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, cerrors.New(cerrors.KindQueueNotFound, "queue entry not found")
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load queue entry", err)
	}
	return rowToEntry(row)
}

// UpdateStatus applies mutate only if the persisted status still equals
// expectedStatus, using a transaction to keep the read-mutate-write
// linearizable per entry (§5).
func (r *QueueRepository) UpdateStatus(ctx context.Context, id string, expectedStatus queue.Status, mutate func(*queue.Entry)) (*queue.Entry, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, cerrors.Wrap(cerrors.KindDatabaseError, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var row queueRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM queues WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, cerrors.New(cerrors.KindQueueNotFound, "queue entry not found")
		}
		return nil, false, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load queue entry", err)
	}

	if row.Status != string(expectedStatus) {
		entry, convErr := rowToEntry(row)
		if convErr != nil {
			return nil, false, convErr
		}
		return entry, false, nil
	}

	entry, err := rowToEntry(row)
	if err != nil {
		return nil, false, err
	}
	mutate(entry)

	if err := r.persistUpdate(ctx, tx, entry); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, cerrors.Wrap(cerrors.KindDatabaseError, "failed to commit transition", err)
	}
	return entry, true, nil
}

func (r *QueueRepository) persistUpdate(ctx context.Context, tx *sqlx.Tx, e *queue.Entry) error {
	var checkInLoc json.RawMessage
	if e.CheckInLocation != nil {
		checkInLoc, _ = json.Marshal(e.CheckInLocation)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE queues SET
			status = $1, notified_at = $2, notification_window_minutes = $3,
			check_in_attempted_at = $4, check_in_location = $5, check_in_distance_meters = $6,
			verified_at = $7, verification_method = $8, verified_by_admin_id = $9,
			service_started_at = $10, service_completed_at = $11,
			no_show_marked_at = $12, no_show_reason = $13, suspicious = $14
		WHERE id = $15
	`, string(e.Status), e.NotifiedAt, e.NotificationWindowMinutes,
		e.CheckInAttemptedAt, checkInLoc, e.CheckInDistanceMeters,
		e.VerifiedAt, verificationMethodPtr(e.VerificationMethod), e.VerifiedByAdminID,
		e.ServiceStartedAt, e.ServiceCompletedAt,
		e.NoShowMarkedAt, e.NoShowReason, e.Suspicious, e.ID)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to persist transition", err)
	}
	return nil
}

func verificationMethodPtr(m *queue.VerificationMethod) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}

func (r *QueueRepository) UpdatePosition(ctx context.Context, id string, position, estimatedWaitMinutes int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE queues SET position = $1, estimated_wait_minutes = $2 WHERE id = $3`,
		position, estimatedWaitMinutes, id)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to persist position", err)
	}
	return nil
}

func (r *QueueRepository) ActiveByUserAndVenue(ctx context.Context, userID, venueID string) (*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row queueRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM queues
		WHERE user_id = $1 AND venue_id = $2 AND status NOT IN ('completed', 'no-show')
		LIMIT 1
	`, userID, venueID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query active entry", err)
	}
	return rowToEntry(row)
}

func (r *QueueRepository) ActiveByUser(ctx context.Context, userID string) ([]*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM queues WHERE user_id = $1 AND status NOT IN ('completed', 'no-show')
	`, userID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query active entries for user", err)
	}
	return rowsToEntries(rows)
}

func (r *QueueRepository) ActiveByVenue(ctx context.Context, venueID string) ([]*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM queues WHERE venue_id = $1 AND status NOT IN ('completed', 'no-show')
		ORDER BY created_at ASC
	`, venueID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query active entries for venue", err)
	}
	return rowsToEntries(rows)
}

func (r *QueueRepository) PendingVerifications(ctx context.Context, venueID string) ([]*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM queues WHERE venue_id = $1 AND status = 'pending_verification'
		ORDER BY suspicious DESC, created_at ASC
	`, venueID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query pending verifications", err)
	}
	return rowsToEntries(rows)
}

func (r *QueueRepository) NotifiedBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM queues WHERE status = 'notified' AND notified_at <= $1
	`, cutoff)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query notified-before entries", err)
	}
	return rowsToEntries(rows)
}

func (r *QueueRepository) PendingVerificationBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM queues WHERE status = 'pending_verification' AND check_in_attempted_at <= $1
	`, cutoff)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to query pending-verification-before entries", err)
	}
	return rowsToEntries(rows)
}

func rowsToEntries(rows []queueRow) ([]*queue.Entry, error) {
	out := make([]*queue.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func rowToEntry(row queueRow) (*queue.Entry, error) {
	var serviceIDs, offers []string
	_ = json.Unmarshal(row.ServiceIDs, &serviceIDs)
	_ = json.Unmarshal(row.AppliedOfferIDs, &offers)

	price, err := decimal.NewFromString(row.TotalPrice)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to parse total price", err)
	}

	e := &queue.Entry{
		ID:                   row.ID,
		VenueID:              row.VenueID,
		UserID:               row.UserID,
		ServiceIDs:           serviceIDs,
		TotalPrice:           price,
		AppliedOfferIDs:      offers,
		Position:             row.Position,
		EstimatedWaitMinutes: row.EstimatedWaitMinutes,
		Suspicious:           row.Suspicious,
		Status:               queue.Status(row.Status),
	}
	if row.CreatedAt.Valid {
		e.CreatedAt = row.CreatedAt.Time
	}
	if row.NotifiedAt.Valid {
		t := row.NotifiedAt.Time
		e.NotifiedAt = &t
	}
	if row.NotificationWindowMinutes.Valid {
		v := int(row.NotificationWindowMinutes.Int64)
		e.NotificationWindowMinutes = &v
	}
	if row.CheckInAttemptedAt.Valid {
		t := row.CheckInAttemptedAt.Time
		e.CheckInAttemptedAt = &t
	}
	if len(row.CheckInLocation) > 0 {
		var loc queue.Location
		if err := json.Unmarshal(row.CheckInLocation, &loc); err == nil {
			e.CheckInLocation = &loc
		}
	}
	if row.CheckInDistanceMeters.Valid {
		v := int(row.CheckInDistanceMeters.Int64)
		e.CheckInDistanceMeters = &v
	}
	if row.VerifiedAt.Valid {
		t := row.VerifiedAt.Time
		e.VerifiedAt = &t
	}
	if row.VerificationMethod.Valid {
		m := queue.VerificationMethod(row.VerificationMethod.String)
		e.VerificationMethod = &m
	}
	if row.VerifiedByAdminID.Valid {
		v := row.VerifiedByAdminID.String
		e.VerifiedByAdminID = &v
	}
	if row.ServiceStartedAt.Valid {
		t := row.ServiceStartedAt.Time
		e.ServiceStartedAt = &t
	}
	if row.ServiceCompletedAt.Valid {
		t := row.ServiceCompletedAt.Time
		e.ServiceCompletedAt = &t
	}
	if row.NoShowMarkedAt.Valid {
		t := row.NoShowMarkedAt.Time
		e.NoShowMarkedAt = &t
	}
	if row.NoShowReason.Valid {
		v := row.NoShowReason.String
		e.NoShowReason = &v
	}
	return e, nil
}
