// Package store defines the community-scoped key/value ConfigStore and its backends.
//
// Every entry belongs to one community and is addressed by a short key; the
// logical name of an entry is "{community}_{key}" (see Key). Writes are per key,
// so rewriting one entry never disturbs its siblings.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned when a community id or key is empty or malformed.
var ErrInvalidKey = errors.New("invalid store key")

// Store is the durable (community, key) -> string mapping used by the configuration engine.
type Store interface {
	// Get returns the value and whether it exists.
	Get(ctx context.Context, community, key string) (string, bool, error)
	// Set writes one entry.
	Set(ctx context.Context, community, key, value string) error
	// Delete removes one entry and reports whether it existed.
	Delete(ctx context.Context, community, key string) (bool, error)
	// Persist applies all changes atomically: either every change is visible or none is.
	Persist(ctx context.Context, community string, changes []Change) error
	// Keys lists the keys stored for a community.
	Keys(ctx context.Context, community string) ([]string, error)
	// DeleteCommunity removes every entry of a community and returns how many were removed.
	DeleteCommunity(ctx context.Context, community string) (int, error)
	// Communities lists every community with at least one entry.
	Communities(ctx context.Context) ([]string, error)
}

// Change is one write inside Persist. Delete takes precedence over Value.
type Change struct {
	Key    string
	Value  string
	Delete bool
}

// SetChange returns a Change writing value under key.
func SetChange(key, value string) Change {
	return Change{Key: key, Value: value}
}

// DeleteChange returns a Change removing key.
func DeleteChange(key string) Change {
	return Change{Key: key, Delete: true}
}

// Key returns the logical name of an entry, e.g. Key("123", "channels") == "123_channels".
func Key(community, key string) string {
	return community + "_" + key
}

// SplitKey is the inverse of Key. Community ids never contain "_".
func SplitKey(name string) (community, key string, ok bool) {
	community, key, ok = strings.Cut(name, "_")
	if !ok || community == "" || key == "" {
		return "", "", false
	}
	return community, key, true
}

// ValidateCommunity checks a community id.
func ValidateCommunity(community string) error {
	if strings.TrimSpace(community) == "" || strings.Contains(community, "_") {
		return fmt.Errorf("%w: community %q", ErrInvalidKey, community)
	}
	return nil
}

// Validate checks a (community, key) pair.
func Validate(community, key string) error {
	if err := ValidateCommunity(community); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key for community %s", ErrInvalidKey, community)
	}
	return nil
}

func validateChanges(community string, changes []Change) error {
	if err := ValidateCommunity(community); err != nil {
		return err
	}
	for _, c := range changes {
		if err := Validate(community, c.Key); err != nil {
			return err
		}
	}
	return nil
}

// freshReader is implemented by stores that may answer Get from memory.
type freshReader interface {
	GetFresh(ctx context.Context, community, key string) (string, bool, error)
}

// GetFresh reads key from the backend behind any cache in front of st.
// Read-modify-write cycles use it so they never build on a stale value.
func GetFresh(ctx context.Context, st Store, community, key string) (string, bool, error) {
	if f, ok := st.(freshReader); ok {
		return f.GetFresh(ctx, community, key)
	}
	return st.Get(ctx, community, key)
}
