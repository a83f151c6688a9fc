package db

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/memohai/confessions/internal/config"
)

// DSN builds a PostgreSQL connection string from config.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)
}

// SQLiteURL builds the golang-migrate database URL for a sqlite file.
func SQLiteURL(path string) string {
	return "sqlite://" + filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
}

// MigrateURL returns the migration URL for the configured store driver.
func MigrateURL(driver string, cfg config.Config) (string, error) {
	switch driver {
	case "postgres":
		return DSN(cfg.Postgres), nil
	case "sqlite":
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return SQLiteURL(cfg.SQLite.Path), nil
	default:
		return "", fmt.Errorf("store driver %q has no migrations", driver)
	}
}

// IsSerializationFailure reports whether err is a PostgreSQL serialization or deadlock failure
// (SQLSTATE 40001 / 40P01), both of which are safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
