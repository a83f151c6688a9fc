package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. It is the "memory" driver and the default in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]string{}}
}

func (m *Memory) Get(ctx context.Context, community, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if err := Validate(community, key); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[community][key]
	return value, ok, nil
}

func (m *Memory) Set(ctx context.Context, community, key, value string) error {
	return m.Persist(ctx, community, []Change{SetChange(key, value)})
}

func (m *Memory) Delete(ctx context.Context, community, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := Validate(community, key); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.data[community]
	if !ok {
		return false, nil
	}
	if _, ok := entries[key]; !ok {
		return false, nil
	}
	delete(entries, key)
	if len(entries) == 0 {
		delete(m.data, community)
	}
	return true, nil
}

func (m *Memory) Persist(ctx context.Context, community string, changes []Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateChanges(community, changes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.data[community]
	if entries == nil {
		entries = map[string]string{}
	}
	for _, c := range changes {
		if c.Delete {
			delete(entries, c.Key)
			continue
		}
		entries[c.Key] = c.Value
	}
	if len(entries) == 0 {
		delete(m.data, community)
		return nil
	}
	m.data[community] = entries
	return nil
}

func (m *Memory) Keys(ctx context.Context, community string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateCommunity(community); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data[community]))
	for key := range m.data[community] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) DeleteCommunity(ctx context.Context, community string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateCommunity(community); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data[community])
	delete(m.data, community)
	return n, nil
}

func (m *Memory) Communities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
