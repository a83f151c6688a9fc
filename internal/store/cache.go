package store

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached is a read-through cache in front of another Store. Reads of single
// entries are cached for ttl; every write through the decorator invalidates
// what it touched. Writes that bypass the decorator, such as another process
// sharing the database, are only observed through GetFresh or after ttl.
type Cached struct {
	next  Store
	cache *gocache.Cache
	// generation is bumped by every write; a read only populates the cache if
	// no write happened while it was talking to the backend. mu makes the
	// check-and-fill and bump-and-delete pairs atomic with respect to each other.
	mu         sync.Mutex
	generation uint64
}

type cachedEntry struct {
	value string
	found bool
}

// NewCached wraps next with a cache of the given ttl.
func NewCached(next Store, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Get(ctx context.Context, community, key string) (string, bool, error) {
	if v, ok := c.cache.Get(Key(community, key)); ok {
		if entry, ok := v.(cachedEntry); ok {
			return entry.value, entry.found, nil
		}
	}
	return c.GetFresh(ctx, community, key)
}

// GetFresh reads key from the backend, ignoring any cached entry, and
// refreshes the cache with the answer.
func (c *Cached) GetFresh(ctx context.Context, community, key string) (string, bool, error) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	value, found, err := GetFresh(ctx, c.next, community, key)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.cache.SetDefault(Key(community, key), cachedEntry{value: value, found: found})
	}
	c.mu.Unlock()
	return value, found, nil
}

func (c *Cached) Set(ctx context.Context, community, key, value string) error {
	defer c.invalidate(community, key)
	return c.next.Set(ctx, community, key, value)
}

func (c *Cached) Delete(ctx context.Context, community, key string) (bool, error) {
	defer c.invalidate(community, key)
	return c.next.Delete(ctx, community, key)
}

func (c *Cached) Persist(ctx context.Context, community string, changes []Change) error {
	keys := make([]string, 0, len(changes))
	for _, change := range changes {
		keys = append(keys, change.Key)
	}
	defer c.invalidate(community, keys...)
	return c.next.Persist(ctx, community, changes)
}

func (c *Cached) Keys(ctx context.Context, community string) ([]string, error) {
	return c.next.Keys(ctx, community)
}

func (c *Cached) DeleteCommunity(ctx context.Context, community string) (int, error) {
	defer c.invalidateCommunity(community)
	return c.next.DeleteCommunity(ctx, community)
}

func (c *Cached) Communities(ctx context.Context) ([]string, error) {
	return c.next.Communities(ctx)
}

func (c *Cached) invalidate(community string, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	for _, key := range keys {
		c.cache.Delete(Key(community, key))
	}
}

func (c *Cached) invalidateCommunity(community string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	prefix := community + "_"
	for name := range c.cache.Items() {
		if strings.HasPrefix(name, prefix) {
			c.cache.Delete(name)
		}
	}
}
