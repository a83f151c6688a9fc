package modules

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/fx"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/config"
	"github.com/memohai/confessions/internal/discord"
	"github.com/memohai/confessions/internal/handlers"
	"github.com/memohai/confessions/internal/reconcile"
	"github.com/memohai/confessions/internal/settings"
)

var DiscordModule = fx.Module(
	"discord",
	fx.Provide(
		discord.NewSession,
		fx.Annotate(discord.NewPlatform, fx.As(new(reconcile.Platform))),
		fx.Annotate(discord.NewAnnouncer, fx.As(fx.Self()), fx.As(new(handlers.Announcer))),
		reconcile.NewReconciler,
		provideBot,
	),
	fx.Invoke(startBot),
)

func provideBot(
	log *slog.Logger,
	session *discordgo.Session,
	cfg config.Config,
	engine *channels.Engine,
	settingsService *settings.Service,
	reconciler *reconcile.Reconciler,
	announcer *discord.Announcer,
) *discord.Bot {
	return discord.NewBot(log, session, cfg.Discord, engine, settingsService, reconciler, announcer)
}

func startBot(lc fx.Lifecycle, bot *discord.Bot) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bot.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return bot.Stop(ctx)
		},
	})
}
