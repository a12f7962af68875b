package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/queue"
)

// VenueRepository implements queue.VenueReader against a venues table
// owned by a different module (§1 non-goal: venue CRUD is out of scope
// here, this is read-only).
type VenueRepository struct {
	db *sqlx.DB
}

// NewVenueRepository builds a VenueRepository.
func NewVenueRepository(db *sqlx.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

type venueRow struct {
	ID          string  `db:"id"`
	OwnerUserID string  `db:"owner_user_id"`
	Latitude    float64 `db:"latitude"`
	Longitude   float64 `db:"longitude"`
	Name        string  `db:"name"`
	Address     string  `db:"address"`
}

func (r *VenueRepository) Get(ctx context.Context, venueID string) (*queue.Venue, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row venueRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM venues WHERE id = $1`, venueID)
	if err == sql.ErrNoRows {
		return nil, cerrors.New(cerrors.KindVenueNotFound, "venue not found").WithDetails(map[string]interface{}{"venueId": venueID})
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load venue", err)
	}
	return &queue.Venue{
		ID: row.ID, OwnerUserID: row.OwnerUserID, Latitude: row.Latitude,
		Longitude: row.Longitude, Name: row.Name, Address: row.Address,
	}, nil
}

// OwnedVenueIDs lists the venues ownerUserID operates, for the realtime
// hub's BroadcastToVenueOwners lookup.
func (r *VenueRepository) OwnedVenueIDs(ctx context.Context, ownerUserID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM venues WHERE owner_user_id = $1`, ownerUserID)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load owned venues", err)
	}
	return ids, nil
}
