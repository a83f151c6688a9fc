package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/confessions/internal/boot"
	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/config"
	"github.com/memohai/confessions/internal/reconcile"
	"github.com/memohai/confessions/internal/settings"
)

const interactionTimeout = 10 * time.Second

// NewSession builds a gateway session from the bot token. It returns nil
// without error when no token is configured.
func NewSession(rc *boot.RuntimeConfig) (*discordgo.Session, error) {
	if rc == nil || strings.TrimSpace(rc.DiscordToken) == "" {
		return nil, nil
	}
	session, err := discordgo.New("Bot " + rc.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return session, nil
}

// Bot wires gateway events and slash commands to the engine and reconciler.
type Bot struct {
	session    *discordgo.Session
	cfg        config.DiscordConfig
	commands   *commandHandler
	reconciler *reconcile.Reconciler
	logger     *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	removers []func()
}

func NewBot(
	log *slog.Logger,
	session *discordgo.Session,
	cfg config.DiscordConfig,
	engine *channels.Engine,
	settingsService *settings.Service,
	reconciler *reconcile.Reconciler,
	announcer *Announcer,
) *Bot {
	if log == nil {
		log = slog.Default()
	}
	logger := log.With(slog.String("component", "discord_bot"))
	commands := &commandHandler{engine: engine, settings: settingsService, logger: logger}
	if announcer != nil {
		commands.announcer = announcer
	}
	return &Bot{
		session:    session,
		cfg:        cfg,
		commands:   commands,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start connects to the gateway. Without a session it only logs a warning.
func (b *Bot) Start(ctx context.Context) error {
	if b.session == nil {
		b.logger.Warn("discord bot token not configured, gateway disabled")
		return nil
	}
	b.mu.Lock()
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onGuildDelete),
		b.session.AddHandler(b.onChannelDelete),
		b.session.AddHandler(b.onInteraction),
	)
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.logger.Info("discord gateway connected")
	return nil
}

func (b *Bot) Stop(context.Context) error {
	if b.session == nil {
		return nil
	}
	b.mu.Lock()
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	b.reconciler.Stop()
	return b.session.Close()
}

func (b *Bot) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, e *discordgo.Ready) {
	appID := b.cfg.ApplicationID
	if appID == "" && e.User != nil {
		appID = e.User.ID
	}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, Commands()); err != nil {
		b.logger.Error("register slash commands failed", slog.Any("error", err))
	}
	b.logger.Info("discord ready", slog.Int("guilds", len(e.Guilds)))
	// Repeated Ready events after reconnects are ignored by the reconciler.
	b.reconciler.Start(b.baseContext())
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	if _, err := b.reconciler.ReconcileCommunity(b.baseContext(), e.ID); err != nil {
		b.logger.Error("remove community on guild delete failed", slog.String("community_id", e.ID), slog.Any("error", err))
	}
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.Channel == nil {
		return
	}
	if _, err := b.reconciler.ReconcileChannel(b.baseContext(), e.GuildID, e.ID); err != nil {
		b.logger.Error("remove channel on channel delete failed",
			slog.String("community_id", e.GuildID),
			slog.String("channel_id", e.ID),
			slog.Any("error", err),
		)
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, e *discordgo.InteractionCreate) {
	if e.Interaction == nil || e.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(b.baseContext(), interactionTimeout)
	defer cancel()

	var (
		reply string
		after func()
	)
	cmd, err := parseCommand(e.Interaction)
	if err != nil {
		b.logger.Warn("bad interaction", slog.Any("error", err))
		reply = "That command can't be used here."
	} else {
		reply, after = b.commands.handle(ctx, cmd)
	}

	err = s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("interaction response failed", slog.Any("error", err))
	}
	if after != nil {
		after()
	}
}

// announcer is the part of Announcer the command handler needs.
type announcer interface {
	Announce(ctx context.Context, community, channel string, out channels.Outcome)
}

type commandHandler struct {
	engine    *channels.Engine
	settings  *settings.Service
	announcer announcer
	logger    *slog.Logger
}

// handle runs cmd and returns the reply plus an optional follow-up to run
// after the reply was sent.
func (h *commandHandler) handle(ctx context.Context, cmd command) (string, func()) {
	switch cmd.Name {
	case commandSetup:
		return h.setup(ctx, cmd)
	case commandShuffle:
		current, err := h.settings.Shuffle(ctx, cmd.Community, cmd.ResetBans)
		if err != nil {
			h.logger.Error("shuffle failed", slog.String("community_id", cmd.Community), slog.Any("error", err))
			return errorReply(err), nil
		}
		reply := fmt.Sprintf("All anon-ids on this server have been shuffled (shuffle #%d).", current.Shuffle)
		if cmd.ResetBans {
			reply += " The ban list was cleared."
		}
		return reply, nil
	default:
		return "Unknown command.", nil
	}
}

func (h *commandHandler) setup(ctx context.Context, cmd command) (string, func()) {
	var (
		out channels.Outcome
		err error
	)
	switch cmd.Sub {
	case subSet:
		out, err = h.engine.Assign(ctx, cmd.Community, cmd.Channel, cmd.Type)
	case subToggle:
		out, err = h.engine.ToggleAnonID(ctx, cmd.Community, cmd.Channel)
	case subUnset:
		out, err = h.engine.Assign(ctx, cmd.Community, cmd.Channel, channels.Unset)
	case subList:
		return listReply(h.engine.Registry().GetAll(ctx, cmd.Community)), nil
	default:
		return "Unknown subcommand.", nil
	}
	if err != nil {
		return errorReply(err), nil
	}
	if !out.Applied || h.announcer == nil {
		return outcomeReply(cmd.Channel, out), nil
	}
	// The announcement must not depend on the interaction deadline.
	actx := context.WithoutCancel(ctx)
	return outcomeReply(cmd.Channel, out), func() {
		h.announcer.Announce(actx, cmd.Community, cmd.Channel, out)
	}
}
