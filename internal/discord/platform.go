// Package discord connects the configuration engine to Discord: gateway
// lifecycle events, slash commands, announcements and reachability lookups.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrNotConnected is returned by lookups when no Discord session is configured.
var ErrNotConnected = errors.New("discord session not configured")

// restClient is the subset of *discordgo.Session used for lookups.
type restClient interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Platform answers reachability lookups from the gateway state cache first and
// falls back to REST. Only explicit "unknown" answers from Discord count as
// missing; every other failure is returned as an error.
type Platform struct {
	rest   restClient
	state  *discordgo.State
	logger *slog.Logger
}

func NewPlatform(log *slog.Logger, session *discordgo.Session) *Platform {
	if log == nil {
		log = slog.Default()
	}
	p := &Platform{logger: log.With(slog.String("component", "discord_platform"))}
	if session != nil {
		p.rest = session
		p.state = session.State
	}
	return p
}

func (p *Platform) CommunityExists(ctx context.Context, id string) (bool, error) {
	if p.state != nil {
		if _, err := p.state.Guild(id); err == nil {
			return true, nil
		}
	}
	if p.rest == nil {
		return false, ErrNotConnected
	}
	_, err := p.rest.Guild(id, discordgo.WithContext(ctx))
	exists, err := classify(err, discordgo.ErrCodeUnknownGuild, discordgo.ErrCodeMissingAccess)
	if err != nil {
		p.logger.Debug("guild lookup inconclusive", slog.String("community_id", id), slog.Any("error", err))
	}
	return exists, err
}

func (p *Platform) ChannelExists(ctx context.Context, id string) (bool, error) {
	if p.state != nil {
		if _, err := p.state.Channel(id); err == nil {
			return true, nil
		}
	}
	if p.rest == nil {
		return false, ErrNotConnected
	}
	_, err := p.rest.Channel(id, discordgo.WithContext(ctx))
	exists, err := classify(err, discordgo.ErrCodeUnknownChannel)
	if err != nil {
		p.logger.Debug("channel lookup inconclusive", slog.String("channel_id", id), slog.Any("error", err))
	}
	return exists, err
}

// classify maps a REST lookup result to (exists, err). missingCodes are the
// JSON error codes that confirm the resource is gone. A bare 404 does too.
func classify(err error, missingCodes ...int) (bool, error) {
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false, err
	}
	if restErr.Message != nil {
		for _, code := range missingCodes {
			if restErr.Message.Code == code {
				return false, nil
			}
		}
		if restErr.Message.Code != 0 {
			return false, err
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, err
}
