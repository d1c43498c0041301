// Package migrations embeds the catalog schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
)

//go:embed *.up.sql
var schema embed.FS

func init() {
	database.RegisterMigrations(schema)
}
