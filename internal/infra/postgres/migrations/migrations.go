// Package migrations holds the schema of the duel store, applied with bun/migrate.
package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// execSQL runs an embedded script. MustRegister must still be called from the
// numbered file itself: bun names the migration after its caller.
func execSQL(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, query)
		return err
	}
}
