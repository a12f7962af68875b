package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	cerrors "github.com/waitline/queuecoord/internal/errors"
	"github.com/waitline/queuecoord/internal/channel/webpush"
)

// PushSubscriptionRepository implements webpush.SubscriptionStore against
// the push_subscriptions collection of §6.
type PushSubscriptionRepository struct {
	db *sqlx.DB
}

// NewPushSubscriptionRepository builds a PushSubscriptionRepository.
func NewPushSubscriptionRepository(db *sqlx.DB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

func (r *PushSubscriptionRepository) Get(ctx context.Context, userID string) ([]webpush.Subscription, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var subs []webpush.Subscription
	err := r.db.SelectContext(ctx, &subs, `
		SELECT id, user_id, endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = $1
	`, userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, cerrors.Wrap(cerrors.KindDatabaseError, "failed to load push subscriptions", err)
	}
	return subs, nil
}

func (r *PushSubscriptionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to delete push subscription", err)
	}
	return nil
}

// Put upserts a subscription, used by the subscribe endpoint in
// internal/httpapi. Not part of webpush.SubscriptionStore but needed by
// the composition root to seed subscriptions created client-side.
func (r *PushSubscriptionRepository) Put(ctx context.Context, sub webpush.Subscription) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET endpoint = EXCLUDED.endpoint, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
	`, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth)
	if err != nil {
		return cerrors.Wrap(cerrors.KindDatabaseError, "failed to upsert push subscription", err)
	}
	return nil
}
