package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/queue"
)

// UserRepository implements queue.UserReader against a users table owned
// by a different module; this module only reads it.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository builds a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

type userRow struct {
	ID    string `db:"id"`
	Phone string `db:"phone"`
	Name  string `db:"name"`
	Role  string `db:"role"`
}

func (r *UserRepository) Get(ctx context.Context, userID string) (*queue.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, cerrors.New(cerrors.KindInvalidUserId, "user not found").WithDetails(map[string]interface{}{"userId": userID})
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load user", err)
	}
	return &queue.User{ID: row.ID, Phone: row.Phone, Name: row.Name, Role: row.Role}, nil
}
