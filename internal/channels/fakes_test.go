package channels_test

import (
	"context"
	"errors"
	"sync"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/logger"
	"github.com/memohai/confessions/internal/store"
)

var errStoreDown = errors.New("store down")

// flakyStore wraps a memory store and fails reads or writes on demand.
type flakyStore struct {
	store.Store

	mu         sync.Mutex
	failReads  bool
	failWrites bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: store.NewMemory()}
}

func (f *flakyStore) set(reads, writes bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads, f.failWrites = reads, writes
}

func (f *flakyStore) readErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return errStoreDown
	}
	return nil
}

func (f *flakyStore) writeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errStoreDown
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, community, key string) (string, bool, error) {
	if err := f.readErr(); err != nil {
		return "", false, err
	}
	return f.Store.Get(ctx, community, key)
}

func (f *flakyStore) Set(ctx context.Context, community, key, value string) error {
	if err := f.writeErr(); err != nil {
		return err
	}
	return f.Store.Set(ctx, community, key, value)
}

func (f *flakyStore) Delete(ctx context.Context, community, key string) (bool, error) {
	if err := f.writeErr(); err != nil {
		return false, err
	}
	return f.Store.Delete(ctx, community, key)
}

// capabilities grants moderation to the listed communities.
type capabilities map[string]bool

func (c capabilities) HasCapability(_ context.Context, community string, capability channels.Capability) bool {
	return capability == channels.CapabilityModeration && c[community]
}

func newRegistry(st store.Store) *channels.Registry {
	return channels.NewRegistry(logger.Discard(), st)
}

func newEngine(st store.Store, caps channels.CapabilityChecker) *channels.Engine {
	return channels.NewEngine(logger.Discard(), newRegistry(st), caps)
}
