// Package migrations embeds SQL migration files into the binary so
// CozyLink never needs the files present on the filesystem at runtime.
package migrations

import (
	"embed"

	"github.com/nerrad567/cozylink/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
