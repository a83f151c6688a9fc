// Package sqlite provides a SQLite-backed store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/memohai/confessions/internal/store"
)

// Store persists config entries in a SQLite database file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the database at path. The schema is applied
// separately with db.RunMigrate(db.SQLiteURL(path), ...).
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, community, key string) (string, bool, error) {
	if err := store.Validate(community, key); err != nil {
		return "", false, err
	}
	var value string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM config_entries WHERE community_id = ? AND key = ?`,
		community, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", store.Key(community, key), err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, community, key, value string) error {
	if err := store.Validate(community, key); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, upsertSQL, community, key, value); err != nil {
		return fmt.Errorf("set %s: %w", store.Key(community, key), err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, community, key string) (bool, error) {
	if err := store.Validate(community, key); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM config_entries WHERE community_id = ? AND key = ?`,
		community, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", store.Key(community, key), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", store.Key(community, key), err)
	}
	return n > 0, nil
}

func (s *Store) Persist(ctx context.Context, community string, changes []store.Change) error {
	if err := store.ValidateCommunity(community); err != nil {
		return err
	}
	for _, c := range changes {
		if err := store.Validate(community, c.Key); err != nil {
			return err
		}
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist community %s: %w", community, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		if c.Delete {
			_, err = tx.ExecContext(ctx, `DELETE FROM config_entries WHERE community_id = ? AND key = ?`, community, c.Key)
		} else {
			_, err = tx.ExecContext(ctx, upsertSQL, community, c.Key, c.Value)
		}
		if err != nil {
			return fmt.Errorf("persist %s: %w", store.Key(community, c.Key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist community %s: %w", community, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, community string) ([]string, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return nil, err
	}
	return s.queryStrings(ctx,
		`SELECT key FROM config_entries WHERE community_id = ? ORDER BY key`,
		community,
	)
}

func (s *Store) DeleteCommunity(ctx context.Context, community string) (int, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM config_entries WHERE community_id = ?`, community)
	if err != nil {
		return 0, fmt.Errorf("delete community %s: %w", community, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete community %s: %w", community, err)
	}
	return int(n), nil
}

func (s *Store) Communities(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT community_id FROM config_entries ORDER BY community_id`)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const upsertSQL = `INSERT INTO config_entries (community_id, key, value) VALUES (?, ?, ?)
ON CONFLICT (community_id, key) DO UPDATE SET value = excluded.value`
