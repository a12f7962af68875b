package postgres

import (
	"context"
	"embed"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies every embedded schema file in lexical order. Schema
// files are idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) so Migrate is safe to run repeatedly, matching the `migrate`
// subcommand's role as a plain bootstrap step rather than a tracked
// migration chain.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return err
		}
	}
	return nil
}
