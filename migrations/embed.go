// Package migrations embeds SQL migration files into the binary.
//
// This lets the bridge run migrations without the SQL files being present
// on the filesystem - they are compiled into the executable.
package migrations

import (
	"embed"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
