// Package postgres provides a PostgreSQL-backed store.Store on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/confessions/internal/db"
	"github.com/memohai/confessions/internal/store"
)

// persistAttempts bounds retries of a Persist transaction that lost a serialization race.
const persistAttempts = 3

// Querier is the subset of pgxpool.Pool used by the store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// Store persists config entries in the config_entries table.
type Store struct {
	pool   Querier
	logger *slog.Logger
}

// New returns a store over an open pool. Schema migrations are applied separately (db.RunMigrate).
func New(log *slog.Logger, pool Querier) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("store", "postgres")),
	}
}

func (s *Store) Get(ctx context.Context, community, key string) (string, bool, error) {
	if err := store.Validate(community, key); err != nil {
		return "", false, err
	}
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM config_entries WHERE community_id = $1 AND key = $2`,
		community, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	if _, err := s.pool.Exec(ctx, upsertSQL, community, key, value); err != nil {
		return fmt.Errorf("set %s: %w", store.Key(community, key), err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, community, key string) (bool, error) {
	if err := store.Validate(community, key); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM config_entries WHERE community_id = $1 AND key = $2`,
		community, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", store.Key(community, key), err)
	}
	return tag.RowsAffected() > 0, nil
}

// Persist writes every change in one serializable transaction, retrying
// serialization failures and deadlocks up to persistAttempts times.
func (s *Store) Persist(ctx context.Context, community string, changes []store.Change) error {
	if err := store.ValidateCommunity(community); err != nil {
		return err
	}
	for _, c := range changes {
		if err := store.Validate(community, c.Key); err != nil {
			return err
		}
	}
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		err = s.persistOnce(ctx, community, changes)
		if err == nil || !db.IsSerializationFailure(err) {
			break
		}
		s.logger.Warn("persist retry", slog.String("community_id", community), slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if err != nil {
		return fmt.Errorf("persist community %s: %w", community, err)
	}
	return nil
}

func (s *Store) persistOnce(ctx context.Context, community string, changes []store.Change) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range changes {
		if c.Delete {
			_, err = tx.Exec(ctx, `DELETE FROM config_entries WHERE community_id = $1 AND key = $2`, community, c.Key)
		} else {
			_, err = tx.Exec(ctx, upsertSQL, community, c.Key, c.Value)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Keys(ctx context.Context, community string) ([]string, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM config_entries WHERE community_id = $1 ORDER BY key`,
		community,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", community, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", community, err)
	}
	return keys, nil
}

func (s *Store) DeleteCommunity(ctx context.Context, community string) (int, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM config_entries WHERE community_id = $1`, community)
	if err != nil {
		return 0, fmt.Errorf("delete community %s: %w", community, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Communities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT community_id FROM config_entries ORDER BY community_id`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return ids, nil
}

const upsertSQL = `INSERT INTO config_entries (community_id, key, value) VALUES ($1, $2, $3)
ON CONFLICT (community_id, key) DO UPDATE SET value = EXCLUDED.value`
