package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/store"
)

var (
	ErrPrefaceTooLong = errors.New("preface too long")
	ErrInvalidAnonID  = errors.New("invalid anon id")
)

// Service reads and writes community settings. Writes run under the same
// community lock as channel map changes so they cannot interleave with a
// community removal.
type Service struct {
	store    store.Store
	registry *channels.Registry
	logger   *slog.Logger
}

func NewService(log *slog.Logger, st store.Store, registry *channels.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    st,
		registry: registry,
		logger:   log.With(slog.String("service", "settings")),
	}
}

func (s *Service) Get(ctx context.Context, community string) (Settings, error) {
	if err := store.ValidateCommunity(community); err != nil {
		return Settings{}, err
	}
	return s.read(ctx, community, false)
}

// Upsert applies the set fields of req and persists the changed keys in one write.
func (s *Service) Upsert(ctx context.Context, community string, req UpsertRequest) (Settings, error) {
	var preface string
	if req.Preface != nil {
		preface = strings.TrimSpace(*req.Preface)
		if len([]rune(preface)) > MaxPrefaceLength {
			return Settings{}, fmt.Errorf("%w: max %d characters", ErrPrefaceTooLong, MaxPrefaceLength)
		}
	}

	var current Settings
	err := s.registry.Update(ctx, community, func(*channels.Tx) error {
		var err error
		current, err = s.read(ctx, community, true)
		if err != nil {
			return err
		}
		var changes []store.Change
		if req.ImageSupport != nil && *req.ImageSupport != current.ImageSupport {
			current.ImageSupport = *req.ImageSupport
			changes = append(changes, store.SetChange(KeyImageSupport, strconv.FormatBool(current.ImageSupport)))
		}
		if req.Webhook != nil && *req.Webhook != current.Webhook {
			current.Webhook = *req.Webhook
			changes = append(changes, store.SetChange(KeyWebhook, strconv.FormatBool(current.Webhook)))
		}
		if req.Preface != nil && preface != current.Preface {
			current.Preface = preface
			if preface == "" {
				changes = append(changes, store.DeleteChange(KeyPreface))
			} else {
				changes = append(changes, store.SetChange(KeyPreface, preface))
			}
		}
		return s.persist(ctx, community, changes)
	})
	if err != nil {
		return Settings{}, err
	}
	return current, nil
}

// Shuffle rotates every anon-id of the community by bumping its shuffle
// counter. With resetBans the ban list, keyed by the old ids, is dropped.
func (s *Service) Shuffle(ctx context.Context, community string, resetBans bool) (Settings, error) {
	var current Settings
	err := s.registry.Update(ctx, community, func(*channels.Tx) error {
		var err error
		current, err = s.read(ctx, community, true)
		if err != nil {
			return err
		}
		current.Shuffle++
		changes := []store.Change{store.SetChange(KeyShuffle, strconv.Itoa(current.Shuffle))}
		if resetBans && len(current.Banned) > 0 {
			current.Banned = []string{}
			changes = append(changes, store.DeleteChange(KeyBanned))
		}
		return s.persist(ctx, community, changes)
	})
	if err != nil {
		return Settings{}, err
	}
	s.logger.Info("anon ids shuffled",
		slog.String("community_id", community),
		slog.Int("shuffle", current.Shuffle),
		slog.Bool("reset_bans", resetBans),
	)
	return current, nil
}

// Ban adds anonID to the ban list. It reports false when it was already banned.
func (s *Service) Ban(ctx context.Context, community, anonID string) (bool, error) {
	return s.updateBans(ctx, community, anonID, func(banned []string, id string) ([]string, bool) {
		if slices.Contains(banned, id) {
			return banned, false
		}
		return append(banned, id), true
	})
}

// Unban removes anonID from the ban list. It reports false when it was not banned.
func (s *Service) Unban(ctx context.Context, community, anonID string) (bool, error) {
	return s.updateBans(ctx, community, anonID, func(banned []string, id string) ([]string, bool) {
		i := slices.Index(banned, id)
		if i < 0 {
			return banned, false
		}
		return slices.Delete(banned, i, i+1), true
	})
}

// IsBanned reports whether anonID is on the community's ban list.
func (s *Service) IsBanned(ctx context.Context, community, anonID string) (bool, error) {
	current, err := s.Get(ctx, community)
	if err != nil {
		return false, err
	}
	return slices.Contains(current.Banned, normalizeAnonID(anonID)), nil
}

func (s *Service) updateBans(ctx context.Context, community, anonID string, fn func(banned []string, id string) ([]string, bool)) (bool, error) {
	anonID = normalizeAnonID(anonID)
	if anonID == "" || strings.Contains(anonID, ",") {
		return false, fmt.Errorf("%w: %q", ErrInvalidAnonID, anonID)
	}
	var changed bool
	err := s.registry.Update(ctx, community, func(*channels.Tx) error {
		current, err := s.read(ctx, community, true)
		if err != nil {
			return err
		}
		var banned []string
		banned, changed = fn(current.Banned, anonID)
		if !changed {
			return nil
		}
		change := store.SetChange(KeyBanned, strings.Join(banned, ","))
		if len(banned) == 0 {
			change = store.DeleteChange(KeyBanned)
		}
		return s.persist(ctx, community, []store.Change{change})
	})
	return changed, err
}

func (s *Service) persist(ctx context.Context, community string, changes []store.Change) error {
	if len(changes) == 0 {
		return nil
	}
	if err := s.store.Persist(ctx, community, changes); err != nil {
		return fmt.Errorf("%w: %w", channels.ErrPersistence, err)
	}
	return nil
}

// read loads every setting. Writers pass latest so the values they modify
// come from the backend rather than a cache.
func (s *Service) read(ctx context.Context, community string, latest bool) (Settings, error) {
	out := Settings{
		ImageSupport: DefaultImageSupport,
		Webhook:      DefaultWebhook,
		Banned:       []string{},
	}
	get := func(key string) (string, bool, error) {
		lookup := s.store.Get
		if latest {
			lookup = func(ctx context.Context, community, key string) (string, bool, error) {
				return store.GetFresh(ctx, s.store, community, key)
			}
		}
		value, found, err := lookup(ctx, community, key)
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", channels.ErrPersistence, err)
		}
		return strings.TrimSpace(value), found, nil
	}

	if value, found, err := get(KeyImageSupport); err != nil {
		return Settings{}, err
	} else if found {
		out.ImageSupport = s.parseBool(community, KeyImageSupport, value, DefaultImageSupport)
	}
	if value, found, err := get(KeyWebhook); err != nil {
		return Settings{}, err
	} else if found {
		out.Webhook = s.parseBool(community, KeyWebhook, value, DefaultWebhook)
	}
	preface, _, err := get(KeyPreface)
	if err != nil {
		return Settings{}, err
	}
	out.Preface = preface
	if value, found, err := get(KeyShuffle); err != nil {
		return Settings{}, err
	} else if found {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			s.logger.Warn("corrupt shuffle counter", slog.String("community_id", community), slog.String("value", value))
			n = 0
		}
		out.Shuffle = n
	}
	banned, _, err := get(KeyBanned)
	if err != nil {
		return Settings{}, err
	}
	for _, id := range strings.Split(banned, ",") {
		if id = normalizeAnonID(id); id != "" && !slices.Contains(out.Banned, id) {
			out.Banned = append(out.Banned, id)
		}
	}
	return out, nil
}

func (s *Service) parseBool(community, key, value string, fallback bool) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		s.logger.Warn("corrupt setting", slog.String("community_id", community), slog.String("key", key), slog.String("value", value))
		return fallback
	}
	return b
}

func normalizeAnonID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
