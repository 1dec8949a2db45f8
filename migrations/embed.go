// Package migrations embeds the SQL schema for the operator database.
//
// Importing it for side effects registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/privacylion/relay-operator/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
