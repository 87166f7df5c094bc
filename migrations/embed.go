// Package migrations embeds SQL migration files into the binary.
//
// The journal schema ships inside the executable, so a fresh install only
// needs a writable data directory.
package migrations

import (
	"embed"

	"github.com/pesanet/scale-telemetry/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
