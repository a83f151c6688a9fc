package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/config"
	"github.com/memohai/confessions/internal/policy"
	"github.com/memohai/confessions/internal/settings"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		channels.NewRegistry,
		fx.Annotate(providePolicy, fx.As(fx.Self()), fx.As(new(channels.CapabilityChecker))),
		channels.NewEngine,
		settings.NewService,
	),
)

func providePolicy(log *slog.Logger, cfg config.Config) *policy.Service {
	return policy.NewService(log, cfg.Moderation)
}
