package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moby/locker"

	"github.com/memohai/confessions/internal/store"
)

// ChannelsKey is the store key holding a community's channel map ("{community}_channels").
const ChannelsKey = "channels"

var (
	// ErrPersistence wraps store failures. Callers may retry; nothing was applied.
	ErrPersistence = errors.New("channel configuration persistence failed")
	// ErrInvalidChannel is returned for empty channel ids.
	ErrInvalidChannel = errors.New("invalid channel id")
)

// ChannelMap maps channel id to its role. Unset channels are absent.
type ChannelMap map[string]ChannelType

// Clone returns an independent copy.
func (m ChannelMap) Clone() ChannelMap {
	out := make(ChannelMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Registry reads and writes community channel maps. All mutations of one
// community are serialized through a lock keyed by the community id.
type Registry struct {
	store  store.Store
	locks  *locker.Locker
	logger *slog.Logger
}

// NewRegistry returns a registry over st.
func NewRegistry(log *slog.Logger, st store.Store) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:  st,
		locks:  locker.New(),
		logger: log.With(slog.String("service", "channels")),
	}
}

// Tx is a view of one community's map held under its lock. It is only valid
// inside the Update callback that produced it.
type Tx struct {
	ctx       context.Context
	registry  *Registry
	community string
	channels  ChannelMap
}

// Community returns the community the transaction is scoped to.
func (tx *Tx) Community() string { return tx.community }

// Get returns the role of channel, Unset when absent.
func (tx *Tx) Get(channel string) ChannelType {
	return tx.channels[channel]
}

// GetAll returns a copy of the map.
func (tx *Tx) GetAll() ChannelMap {
	return tx.channels.Clone()
}

// FindVettingChannel returns the channel holding a vetting-family role, if any.
func (tx *Tx) FindVettingChannel() (string, bool) {
	return findVetting(tx.channels)
}

// Set writes one entry and persists the map. Setting Unset removes the entry.
func (tx *Tx) Set(channel string, t ChannelType) error {
	if t == Unset {
		_, err := tx.Unset(channel)
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTypeValue, t)
	}
	next := tx.channels.Clone()
	next[channel] = t
	if err := tx.registry.save(tx.ctx, tx.community, next); err != nil {
		return err
	}
	tx.channels = next
	return nil
}

// Unset removes channel from the map and persists it. It reports false, and
// writes nothing, when the channel had no entry.
func (tx *Tx) Unset(channel string) (bool, error) {
	if _, ok := tx.channels[channel]; !ok {
		return false, nil
	}
	next := tx.channels.Clone()
	delete(next, channel)
	if err := tx.registry.save(tx.ctx, tx.community, next); err != nil {
		return false, err
	}
	tx.channels = next
	return true, nil
}

// Update loads the community map under the community lock and runs fn with it.
// The map is read past any store cache so a change never rewrites a stale copy.
// Store read failures are reported as ErrPersistence and fn is not called.
func (r *Registry) Update(ctx context.Context, community string, fn func(tx *Tx) error) error {
	if err := store.ValidateCommunity(community); err != nil {
		return err
	}
	r.locks.Lock(community)
	defer func() { _ = r.locks.Unlock(community) }()

	channels, err := r.loadLatest(ctx, community)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return fn(&Tx{ctx: ctx, registry: r, community: community, channels: channels})
}

// Get returns the role of a channel. Read failures are logged and reported as Unset.
func (r *Registry) Get(ctx context.Context, community, channel string) ChannelType {
	return r.GetAll(ctx, community)[channel]
}

// GetAll returns the community's channel map, empty on read failure.
func (r *Registry) GetAll(ctx context.Context, community string) ChannelMap {
	channels, err := r.load(ctx, community)
	if err != nil {
		r.logger.Error("load channel map failed", slog.String("community_id", community), slog.Any("error", err))
		return ChannelMap{}
	}
	return channels
}

// FindVettingChannel returns the channel holding the community's vetting role, if any.
func (r *Registry) FindVettingChannel(ctx context.Context, community string) (string, bool) {
	return findVetting(r.GetAll(ctx, community))
}

// Set assigns t to channel and persists the community map.
func (r *Registry) Set(ctx context.Context, community, channel string, t ChannelType) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	return r.Update(ctx, community, func(tx *Tx) error {
		return tx.Set(channel, t)
	})
}

// Unset removes channel's entry. It reports whether an entry was removed.
func (r *Registry) Unset(ctx context.Context, community, channel string) (bool, error) {
	if err := validateChannel(channel); err != nil {
		return false, err
	}
	var removed bool
	err := r.Update(ctx, community, func(tx *Tx) error {
		var err error
		removed, err = tx.Unset(channel)
		return err
	})
	return removed, err
}

// DeleteCommunity removes every stored key of the community (channel map and
// auxiliary settings) under the community lock.
func (r *Registry) DeleteCommunity(ctx context.Context, community string) (int, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return 0, err
	}
	r.locks.Lock(community)
	defer func() { _ = r.locks.Unlock(community) }()

	n, err := r.store.DeleteCommunity(ctx, community)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, nil
}

// Communities lists every community with stored configuration.
func (r *Registry) Communities(ctx context.Context) ([]string, error) {
	ids, err := r.store.Communities(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return ids, nil
}

// Find locates the community whose map contains channel.
func (r *Registry) Find(ctx context.Context, channel string) (string, bool, error) {
	ids, err := r.Communities(ctx)
	if err != nil {
		return "", false, err
	}
	for _, id := range ids {
		channels, err := r.load(ctx, id)
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if _, ok := channels[channel]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *Registry) load(ctx context.Context, community string) (ChannelMap, error) {
	return r.loadWith(ctx, community, r.store.Get)
}

func (r *Registry) loadLatest(ctx context.Context, community string) (ChannelMap, error) {
	return r.loadWith(ctx, community, func(ctx context.Context, community, key string) (string, bool, error) {
		return store.GetFresh(ctx, r.store, community, key)
	})
}

func (r *Registry) loadWith(ctx context.Context, community string, get func(ctx context.Context, community, key string) (string, bool, error)) (ChannelMap, error) {
	raw, found, err := get(ctx, community, ChannelsKey)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(raw) == "" {
		return ChannelMap{}, nil
	}
	return r.decode(community, raw), nil
}

// decode never fails: malformed documents and unknown type values are logged
// and read as Unset.
func (r *Registry) decode(community, raw string) ChannelMap {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		r.logger.Error("corrupt channel map", slog.String("community_id", community), slog.Any("error", err))
		return ChannelMap{}
	}
	channels := make(ChannelMap, len(doc))
	for channel, value := range doc {
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			r.logger.Warn("corrupt channel entry",
				slog.String("community_id", community),
				slog.String("channel_id", channel),
				slog.Any("error", fmt.Errorf("%w: %s", ErrInvalidTypeValue, string(value))),
			)
			continue
		}
		t, err := FromValue(n)
		if err != nil {
			r.logger.Warn("corrupt channel entry",
				slog.String("community_id", community),
				slog.String("channel_id", channel),
				slog.Any("error", err),
			)
			continue
		}
		if t == Unset || channel == "" {
			continue
		}
		channels[channel] = t
	}
	return channels
}

func (r *Registry) save(ctx context.Context, community string, channels ChannelMap) error {
	if len(channels) == 0 {
		if _, err := r.store.Delete(ctx, community, ChannelsKey); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return nil
	}
	doc := make(map[string]int, len(channels))
	for channel, t := range channels {
		doc[channel] = t.Value()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := r.store.Set(ctx, community, ChannelsKey, string(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func findVetting(channels ChannelMap) (string, bool) {
	for channel, t := range channels {
		if t.IsVetting() {
			return channel, true
		}
	}
	return "", false
}

func validateChannel(channel string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}
	return nil
}
