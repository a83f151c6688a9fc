package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/confessions/internal/channels"
)

// messageSender is the subset of *discordgo.Session used to post announcements.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Announcer posts a notice in a channel after its role changed. Failures are
// logged and never undo the change.
type Announcer struct {
	sender messageSender
	logger *slog.Logger
}

func NewAnnouncer(log *slog.Logger, session *discordgo.Session) *Announcer {
	if log == nil {
		log = slog.Default()
	}
	a := &Announcer{logger: log.With(slog.String("component", "discord_announcer"))}
	if session != nil {
		a.sender = session
	}
	return a
}

// Announce does nothing for rejected outcomes.
func (a *Announcer) Announce(ctx context.Context, community, channel string, out channels.Outcome) {
	if !out.Applied || a.sender == nil {
		return
	}
	text := announcement(out)
	if _, err := a.sender.ChannelMessageSend(channel, text, discordgo.WithContext(ctx)); err != nil {
		a.logger.Warn("announcement failed",
			slog.String("community_id", community),
			slog.String("channel_id", channel),
			slog.Any("error", err),
		)
	}
}

var setNotices = map[channels.ChannelType]string{
	channels.Confessional:     "This is now a confessional channel. Anyone can post anonymously here with `/confess`.",
	channels.ConfessionalAnon: "This is now a confessional channel with anon-ids. Each author gets a consistent anonymous id, shown with every confession.",
	channels.Marketplace:      "This is now an anonymous marketplace. Use `/sell` to list an offer; buyers reply without revealing themselves.",
	channels.Vetting:          "This is now the vetting channel. Confessions wait here for moderator approval before they are posted.",
	channels.VettingAnon:      "This is now the vetting channel, with anon-ids shown to moderators. Confessions wait here for approval before they are posted.",
}

func announcement(out channels.Outcome) string {
	if out.Type == channels.Unset {
		return "This channel is no longer a " + out.Previous.Kind().String() + " channel. Use `/setup set` to configure it again."
	}
	notice, ok := setNotices[out.Type]
	if !ok {
		notice = "This channel is now a " + out.Type.String() + " channel."
	}
	return notice + " Use `/setup unset` to undo this."
}
