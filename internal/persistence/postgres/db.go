// Package postgres implements the coordinator's persistence layout of §6
// on top of sqlx + lib/pq, following the teacher's repository pattern:
// one struct per collection wrapping *sqlx.DB plus a fixed per-call
// timeout, pq.Error code "23505" recognized as a duplicate-key conflict.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultQueryTimeout = 5 * time.Second

// Open connects to Postgres using the lib/pq driver, matching the
// teacher's persistence bootstrap.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

const isUniqueViolation = "23505"
