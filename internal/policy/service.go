// Package policy resolves which optional capabilities a community has.
package policy

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/config"
)

// Service answers capability checks from configuration. Moderation is
// available everywhere when enabled, unless the community is excluded.
type Service struct {
	moderation bool
	excluded   []string
	logger     *slog.Logger
}

func NewService(log *slog.Logger, cfg config.ModerationConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	excluded := make([]string, 0, len(cfg.Excluded))
	for _, id := range cfg.Excluded {
		if id = strings.TrimSpace(id); id != "" {
			excluded = append(excluded, id)
		}
	}
	return &Service{
		moderation: cfg.Enabled,
		excluded:   excluded,
		logger:     log.With(slog.String("service", "policy")),
	}
}

// HasCapability implements channels.CapabilityChecker.
func (s *Service) HasCapability(_ context.Context, community string, capability channels.Capability) bool {
	switch capability {
	case channels.CapabilityNone:
		return true
	case channels.CapabilityModeration:
		return s.moderation && !slices.Contains(s.excluded, community)
	default:
		s.logger.Warn("unknown capability", slog.String("capability", string(capability)))
		return false
	}
}
