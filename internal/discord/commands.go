package discord

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/confessions/internal/channels"
)

const (
	commandSetup   = "setup"
	commandShuffle = "shuffle"

	subSet    = "set"
	subToggle = "toggle"
	subUnset  = "unset"
	subList   = "list"

	optionType      = "type"
	optionChannel   = "channel"
	optionResetBans = "reset_bans"
)

// Commands returns the slash commands registered on Ready.
func Commands() []*discordgo.ApplicationCommand {
	manageChannels := int64(discordgo.PermissionManageChannels)
	moderateMembers := int64(discordgo.PermissionModerateMembers)
	dm := false

	typeChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(channels.Types()))
	for _, t := range channels.Types() {
		typeChoices = append(typeChoices, &discordgo.ApplicationCommandOptionChoice{Name: t.String(), Value: t.String()})
	}
	channelOption := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         optionChannel,
		Description:  "Channel to configure (defaults to this one)",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     commandSetup,
			Description:              "Change confessions settings on this server",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subSet,
					Description: "Give a channel a role",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        optionType,
							Description: "Channel role",
							Required:    true,
							Choices:     typeChoices,
						},
						channelOption,
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subToggle,
					Description: "Toggle anon-ids on a confessional or vetting channel",
					Options:     []*discordgo.ApplicationCommandOption{channelOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subUnset,
					Description: "Remove a channel's role",
					Options:     []*discordgo.ApplicationCommandOption{channelOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        subList,
					Description: "List configured channels",
				},
			},
		},
		{
			Name:                     commandShuffle,
			Description:              "Change all anon-ids on this server",
			DefaultMemberPermissions: &moderateMembers,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        optionResetBans,
					Description: "Also clear the ban list, which refers to the old anon-ids",
				},
			},
		},
	}
}

// command is a parsed slash command invocation.
type command struct {
	Name      string
	Sub       string
	Community string
	Channel   string
	Type      channels.ChannelType
	ResetBans bool
}

func parseCommand(i *discordgo.Interaction) (command, error) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return command{}, errors.New("not an application command")
	}
	if i.GuildID == "" {
		return command{}, errors.New("command used outside a server")
	}
	data := i.ApplicationCommandData()
	cmd := command{Name: data.Name, Community: i.GuildID, Channel: i.ChannelID}

	options := data.Options
	if cmd.Name == commandSetup {
		if len(options) == 0 || options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
			return command{}, errors.New("missing subcommand")
		}
		cmd.Sub = options[0].Name
		options = options[0].Options
	}
	for _, opt := range options {
		switch opt.Name {
		case optionChannel:
			if id := strings.TrimSpace(fmt.Sprint(opt.Value)); id != "" {
				cmd.Channel = id
			}
		case optionType:
			t, err := channels.Parse(fmt.Sprint(opt.Value))
			if err != nil {
				return command{}, err
			}
			cmd.Type = t
		case optionResetBans:
			b, _ := opt.Value.(bool)
			cmd.ResetBans = b
		}
	}
	return cmd, nil
}

func mention(channel string) string {
	return "<#" + channel + ">"
}

// outcomeReply is the ephemeral reply to the invoking user.
func outcomeReply(channel string, out channels.Outcome) string {
	if out.Applied {
		if out.Type == channels.Unset {
			return mention(channel) + " is no longer configured."
		}
		return mention(channel) + " is now a **" + out.Type.String() + "** channel."
	}
	switch out.Reason {
	case channels.ReasonNoChange:
		return mention(channel) + " is already a **" + out.Previous.String() + "** channel."
	case channels.ReasonAlreadyUnset:
		return mention(channel) + " isn't configured, so there is nothing to unset."
	case channels.ReasonCapabilityMissing:
		return "Vetting channels need moderation features, which aren't available on this server."
	case channels.ReasonVettingSlotTaken:
		if out.VettingChannel != "" {
			return "Only one vetting channel is allowed per server, and " + mention(out.VettingChannel) + " already is one."
		}
		return "Only one vetting channel is allowed per server."
	case channels.ReasonToggleUnsupported:
		return "Anon-ids can only be toggled on confessional and vetting channels."
	default:
		return "That change was not applied."
	}
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, channels.ErrPersistence):
		return "Couldn't save the change. Please try again in a moment."
	case errors.Is(err, channels.ErrInvalidTypeValue):
		return "Unknown channel type."
	case errors.Is(err, context.DeadlineExceeded):
		return "That took too long. Please try again."
	default:
		return "Something went wrong."
	}
}

func listReply(m channels.ChannelMap) string {
	if len(m) == 0 {
		return "No channels are configured on this server. Use `/setup set` to get started."
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortChannelIDs(ids)
	var b strings.Builder
	b.WriteString("Configured channels:")
	for _, id := range ids {
		b.WriteString("\n- " + mention(id) + ": " + m[id].String())
	}
	return b.String()
}

// sortChannelIDs orders snowflakes numerically, which is creation order.
func sortChannelIDs(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}
