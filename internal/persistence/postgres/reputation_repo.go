package postgres

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/reputation"
)

// ReputationStore persists reputation.Record plus an append-only
// reputation_events ledger that makes Apply idempotent per
// SPEC_FULL.md §6 ("a retried call is a no-op duplicate-key skip").
// Per-user serialization is enforced with an in-process lock map layered
// over the row-level locking `SELECT ... FOR UPDATE` already gives us,
// matching §4.B's "single-writer-per-user discipline" without relying on
// database-level advisory locks the teacher's stack never uses.
type ReputationStore struct {
	db    *sqlx.DB
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReputationStore builds a ReputationStore.
func NewReputationStore(db *sqlx.DB) *ReputationStore {
	return &ReputationStore{db: db, locks: make(map[string]*sync.Mutex)}
}

func (s *ReputationStore) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

type reputationRow struct {
	UserID             string       `db:"user_id"`
	TotalCheckIns      int          `db:"total_check_ins"`
	SuccessfulCheckIns int          `db:"successful_check_ins"`
	FalseCheckIns      int          `db:"false_check_ins"`
	NoShows            int          `db:"no_shows"`
	CompletedServices  int          `db:"completed_services"`
	Score              int          `db:"score"`
	Tier               string       `db:"tier"`
	LastCheckInAt      sql.NullTime `db:"last_check_in_at"`
	LastNoShowAt       sql.NullTime `db:"last_no_show_at"`
	CreatedAt          sql.NullTime `db:"created_at"`
	UpdatedAt          sql.NullTime `db:"updated_at"`
}

func (s *ReputationStore) Get(ctx context.Context, userID string) (*reputation.Record, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row reputationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM reputation WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return s.createDefault(ctx, userID)
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load reputation", err)
	}
	return rowToRecord(row), nil
}

func (s *ReputationStore) createDefault(ctx context.Context, userID string) (*reputation.Record, error) {
	rec := reputation.NewRecord(userID, nowUTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation (user_id, score, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, rec.UserID, rec.Score, string(rec.Tier), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to create reputation record", err)
	}
	return rec, nil
}

func (s *ReputationStore) Apply(ctx context.Context, userID string, action reputation.Action, eventKey string) (*reputation.Record, error) {
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if eventKey != "" {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reputation_events (user_id, action, reason) VALUES ($1, $2, $3)
		`, userID, string(action), eventKey)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == isUniqueViolation {
				// Already applied; return the current record unchanged.
				var row reputationRow
				if getErr := tx.GetContext(ctx, &row, `SELECT * FROM reputation WHERE user_id = $1`, userID); getErr != nil {
					return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load reputation after duplicate event", getErr)
				}
				return rowToRecord(row), nil
			}
			return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to record reputation event", err)
		}
	}

	var row reputationRow
	err = tx.GetContext(ctx, &row, `SELECT * FROM reputation WHERE user_id = $1 FOR UPDATE`, userID)
	var rec *reputation.Record
	if err == sql.ErrNoRows {
		rec = reputation.NewRecord(userID, nowUTC())
	} else if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load reputation for update", err)
	} else {
		rec = rowToRecord(row)
	}

	rec.Apply(action, nowUTC())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reputation (user_id, total_check_ins, successful_check_ins, false_check_ins, no_shows, completed_services, score, tier, last_check_in_at, last_no_show_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			total_check_ins = EXCLUDED.total_check_ins,
			successful_check_ins = EXCLUDED.successful_check_ins,
			false_check_ins = EXCLUDED.false_check_ins,
			no_shows = EXCLUDED.no_shows,
			completed_services = EXCLUDED.completed_services,
			score = EXCLUDED.score,
			tier = EXCLUDED.tier,
			last_check_in_at = EXCLUDED.last_check_in_at,
			last_no_show_at = EXCLUDED.last_no_show_at,
			updated_at = EXCLUDED.updated_at
	`, rec.UserID, rec.TotalCheckIns, rec.SuccessfulCheckIns, rec.FalseCheckIns, rec.NoShows, rec.CompletedServices,
		rec.Score, string(rec.Tier), rec.LastCheckInAt, rec.LastNoShowAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to persist reputation update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to commit reputation update", err)
	}
	return rec, nil
}

func (s *ReputationStore) IsBanned(ctx context.Context, userID string) (bool, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec.IsBanned(), nil
}

func rowToRecord(row reputationRow) *reputation.Record {
	rec := &reputation.Record{
		UserID:             row.UserID,
		TotalCheckIns:      row.TotalCheckIns,
		SuccessfulCheckIns: row.SuccessfulCheckIns,
		FalseCheckIns:      row.FalseCheckIns,
		NoShows:            row.NoShows,
		CompletedServices:  row.CompletedServices,
		Score:              row.Score,
		Tier:               reputation.Tier(row.Tier),
	}
	if row.LastCheckInAt.Valid {
		t := row.LastCheckInAt.Time
		rec.LastCheckInAt = &t
	}
	if row.LastNoShowAt.Valid {
		t := row.LastNoShowAt.Time
		rec.LastNoShowAt = &t
	}
	if row.CreatedAt.Valid {
		rec.CreatedAt = row.CreatedAt.Time
	}
	if row.UpdatedAt.Valid {
		rec.UpdatedAt = row.UpdatedAt.Time
	}
	return rec
}
