package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/memohai/confessions/internal/store"
	"github.com/memohai/confessions/internal/store/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemory()
	})
}

func TestCachedConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewCached(store.NewMemory(), time.Minute)
	})
}

// countingStore counts backend reads.
type countingStore struct {
	store.Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, community, key string) (string, bool, error) {
	c.gets++
	return c.Store.Get(ctx, community, key)
}

func TestCachedServesRepeatedReadsFromCache(t *testing.T) {
	backend := &countingStore{Store: store.NewMemory()}
	cached := store.NewCached(backend, time.Minute)
	ctx := context.Background()

	if err := cached.Set(ctx, "100", "channels", `{"1":1}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if value, found, err := cached.Get(ctx, "100", "channels"); err != nil || !found || value != `{"1":1}` {
			t.Fatalf("Get() = %q, %v, %v", value, found, err)
		}
	}
	if backend.gets != 1 {
		t.Fatalf("backend gets = %d, want 1", backend.gets)
	}

	if err := cached.Set(ctx, "100", "channels", `{"1":4}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if value, _, _ := cached.Get(ctx, "100", "channels"); value != `{"1":4}` {
		t.Fatalf("Get() after write = %q", value)
	}
	if backend.gets != 2 {
		t.Fatalf("backend gets = %d, want 2", backend.gets)
	}
}

func TestCachedCachesMisses(t *testing.T) {
	backend := &countingStore{Store: store.NewMemory()}
	cached := store.NewCached(backend, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, found, err := cached.Get(ctx, "100", "channels"); err != nil || found {
			t.Fatalf("Get() found = %v, err = %v", found, err)
		}
	}
	if backend.gets != 1 {
		t.Fatalf("backend gets = %d, want 1", backend.gets)
	}
}

func TestCachedDeleteCommunityInvalidates(t *testing.T) {
	cached := store.NewCached(store.NewMemory(), time.Minute)
	ctx := context.Background()

	_ = cached.Set(ctx, "100", "channels", "{}")
	_ = cached.Set(ctx, "100", "banned", "a")
	_ = cached.Set(ctx, "1000", "banned", "b")
	_, _, _ = cached.Get(ctx, "100", "banned")
	_, _, _ = cached.Get(ctx, "1000", "banned")

	if _, err := cached.DeleteCommunity(ctx, "100"); err != nil {
		t.Fatalf("DeleteCommunity() error = %v", err)
	}
	if _, found, _ := cached.Get(ctx, "100", "banned"); found {
		t.Fatal("expected banned to be gone after community deletion")
	}
	if value, found, _ := cached.Get(ctx, "1000", "banned"); !found || value != "b" {
		t.Fatalf("sibling community affected: %q, %v", value, found)
	}
}

func TestCachedGetFreshSeesWritesFromElsewhere(t *testing.T) {
	backend := store.NewMemory()
	cached := store.NewCached(backend, time.Minute)
	ctx := context.Background()

	_ = cached.Set(ctx, "100", "channels", `{"10":4}`)
	if value, _, _ := cached.Get(ctx, "100", "channels"); value != `{"10":4}` {
		t.Fatalf("Get() = %q", value)
	}
	// Another process sharing the database removes the entry.
	if _, err := backend.Delete(ctx, "100", "channels"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := cached.Get(ctx, "100", "channels"); !found {
		t.Fatal("expected Get() to answer from the cache")
	}
	if _, found, err := store.GetFresh(ctx, cached, "100", "channels"); err != nil || found {
		t.Fatalf("GetFresh() found = %v, err = %v", found, err)
	}
	if _, found, _ := cached.Get(ctx, "100", "channels"); found {
		t.Fatal("GetFresh() did not refresh the cached entry")
	}
	if _, found, _ := store.GetFresh(ctx, backend, "100", "channels"); found {
		t.Fatal("GetFresh() on a plain store should read it directly")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	name := store.Key("123", "channels")
	if name != "123_channels" {
		t.Fatalf("Key() = %q", name)
	}
	community, key, ok := store.SplitKey(name)
	if !ok || community != "123" || key != "channels" {
		t.Fatalf("SplitKey() = %q, %q, %v", community, key, ok)
	}
	for _, bad := range []string{"", "123", "_channels", "123_"} {
		if _, _, ok := store.SplitKey(bad); ok {
			t.Errorf("SplitKey(%q) should fail", bad)
		}
	}
}
