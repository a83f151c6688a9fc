// Package storetest is a conformance suite shared by every store.Store backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memohai/confessions/internal/store"
)

// Run exercises the Store contract against stores produced by newStore.
// Each subtest receives a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		value, found, err := s.Get(context.Background(), "100", "channels")
		require.NoError(t, err)
		require.False(t, found)
		require.Empty(t, value)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "100", "channels", `{"1":1}`))
		require.NoError(t, s.Set(ctx, "100", "channels", `{"1":4}`))
		value, found, err := s.Get(ctx, "100", "channels")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, `{"1":4}`, value)
	})

	t.Run("WritesAreScopedPerKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "100", "banned", "a,b"))
		require.NoError(t, s.Set(ctx, "100", "channels", `{"1":1}`))
		require.NoError(t, s.Set(ctx, "200", "channels", `{"2":3}`))

		value, found, err := s.Get(ctx, "100", "banned")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "a,b", value)

		value, _, err = s.Get(ctx, "200", "channels")
		require.NoError(t, err)
		require.Equal(t, `{"2":3}`, value)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "100", "shuffle", "3"))

		removed, err := s.Delete(ctx, "100", "shuffle")
		require.NoError(t, err)
		require.True(t, removed)

		removed, err = s.Delete(ctx, "100", "shuffle")
		require.NoError(t, err)
		require.False(t, removed)

		_, found, err := s.Get(ctx, "100", "shuffle")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("PersistAppliesAllChanges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "100", "banned", "x"))
		require.NoError(t, s.Persist(ctx, "100", []store.Change{
			store.SetChange("shuffle", "1"),
			store.SetChange("webhook", "true"),
			store.DeleteChange("banned"),
		}))

		keys, err := s.Keys(ctx, "100")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"shuffle", "webhook"}, keys)
	})

	t.Run("PersistRejectsInvalidKeysWithoutWriting", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.Persist(ctx, "100", []store.Change{
			store.SetChange("shuffle", "1"),
			store.SetChange("", "broken"),
		})
		require.ErrorIs(t, err, store.ErrInvalidKey)

		keys, err := s.Keys(ctx, "100")
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("DeleteCommunityIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "100", "channels", "{}"))
		require.NoError(t, s.Set(ctx, "100", "banned", ""))
		require.NoError(t, s.Set(ctx, "200", "channels", "{}"))

		removed, err := s.DeleteCommunity(ctx, "100")
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		removed, err = s.DeleteCommunity(ctx, "100")
		require.NoError(t, err)
		require.Zero(t, removed)

		ids, err := s.Communities(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"200"}, ids)
	})

	t.Run("CommunitiesSorted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"300", "100", "200"} {
			require.NoError(t, s.Set(ctx, id, "channels", "{}"))
		}
		ids, err := s.Communities(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"100", "200", "300"}, ids)
	})

	t.Run("InvalidCommunity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.ErrorIs(t, s.Set(ctx, "", "channels", "{}"), store.ErrInvalidKey)
		require.ErrorIs(t, s.Set(ctx, "1_2", "channels", "{}"), store.ErrInvalidKey)
		_, _, err := s.Get(ctx, "100", " ")
		require.ErrorIs(t, err, store.ErrInvalidKey)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Error(t, s.Set(ctx, "100", "channels", "{}"))
	})
}
