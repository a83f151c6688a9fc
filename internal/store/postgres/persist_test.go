package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/memohai/confessions/internal/logger"
	"github.com/memohai/confessions/internal/store"
)

// beginRecorder records transaction options and fails BeginTx with the queued errors.
type beginRecorder struct {
	Querier
	failures []error
	opts     []pgx.TxOptions
}

func (b *beginRecorder) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = append(b.opts, opts)
	if len(b.failures) == 0 {
		return nil, errors.New("no more transactions")
	}
	err := b.failures[0]
	b.failures = b.failures[1:]
	return nil, err
}

func TestPersistUsesSerializableTransactions(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40001"}
	rec := &beginRecorder{failures: []error{conflict, conflict, conflict}}
	st := New(logger.Discard(), rec)

	err := st.Persist(context.Background(), "1", []store.Change{store.SetChange("webhook", "true")})
	require.ErrorIs(t, err, conflict)
	require.Len(t, rec.opts, persistAttempts)
	for _, opts := range rec.opts {
		require.Equal(t, pgx.Serializable, opts.IsoLevel)
	}
}

func TestPersistDoesNotRetryOtherErrors(t *testing.T) {
	down := errors.New("connection refused")
	rec := &beginRecorder{failures: []error{down}}
	st := New(logger.Discard(), rec)

	err := st.Persist(context.Background(), "1", []store.Change{store.SetChange("webhook", "true")})
	require.ErrorIs(t, err, down)
	require.Len(t, rec.opts, 1)
}
