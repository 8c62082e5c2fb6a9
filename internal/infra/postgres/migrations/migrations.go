// Package migrations holds the bun migrations for the question tables and quiz_results.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
