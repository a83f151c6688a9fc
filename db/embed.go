// Package db embeds the SQL schema shared by the postgres and sqlite config stores.
package db

import "embed"

// MigrationsFS contains the golang-migrate files (NNNNNN_name.{up,down}.sql) at migrations/.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
