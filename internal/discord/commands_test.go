package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/logger"
	"github.com/memohai/confessions/internal/settings"
	"github.com/memohai/confessions/internal/store"
)

type moderationEverywhere struct{}

func (moderationEverywhere) HasCapability(context.Context, string, channels.Capability) bool {
	return true
}

type recordingSender struct {
	mu    sync.Mutex
	sent  map[string][]string
	fails bool
}

func (r *recordingSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails {
		return nil, errors.New("forbidden")
	}
	if r.sent == nil {
		r.sent = map[string][]string{}
	}
	r.sent[channelID] = append(r.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newHandler(sender *recordingSender) *commandHandler {
	st := store.NewMemory()
	reg := channels.NewRegistry(logger.Discard(), st)
	return &commandHandler{
		engine:    channels.NewEngine(logger.Discard(), reg, moderationEverywhere{}),
		settings:  settings.NewService(logger.Discard(), st, reg),
		announcer: &Announcer{sender: sender, logger: logger.Discard()},
		logger:    logger.Discard(),
	}
}

func setupInteraction(sub string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "1",
		ChannelID: "10",
		Data: discordgo.ApplicationCommandInteractionData{
			Name: commandSetup,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: sub, Type: discordgo.ApplicationCommandOptionSubCommand, Options: options},
			},
		},
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cmd, err := parseCommand(setupInteraction(subSet,
		&discordgo.ApplicationCommandInteractionDataOption{Name: optionType, Type: discordgo.ApplicationCommandOptionString, Value: "vetting-anon"},
		&discordgo.ApplicationCommandInteractionDataOption{Name: optionChannel, Type: discordgo.ApplicationCommandOptionChannel, Value: "20"},
	))
	if err != nil {
		t.Fatalf("parseCommand() error = %v", err)
	}
	if cmd.Name != commandSetup || cmd.Sub != subSet || cmd.Community != "1" || cmd.Channel != "20" || cmd.Type != channels.VettingAnon {
		t.Fatalf("parseCommand() = %+v", cmd)
	}

	cmd, err = parseCommand(setupInteraction(subToggle))
	if err != nil || cmd.Channel != "10" {
		t.Fatalf("toggle without channel = %+v, %v", cmd, err)
	}

	if _, err := parseCommand(setupInteraction(subSet,
		&discordgo.ApplicationCommandInteractionDataOption{Name: optionType, Type: discordgo.ApplicationCommandOptionString, Value: "gallery"},
	)); !errors.Is(err, channels.ErrInvalidTypeValue) {
		t.Fatalf("bad type error = %v", err)
	}

	dm := setupInteraction(subList)
	dm.GuildID = ""
	if _, err := parseCommand(dm); err == nil {
		t.Fatal("expected error outside a server")
	}

	shuffle := &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "1",
		Data: discordgo.ApplicationCommandInteractionData{
			Name: commandShuffle,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: optionResetBans, Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
			},
		},
	}
	cmd, err = parseCommand(shuffle)
	if err != nil || cmd.Name != commandShuffle || !cmd.ResetBans {
		t.Fatalf("shuffle = %+v, %v", cmd, err)
	}
}

func TestSetupFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &recordingSender{}
	h := newHandler(sender)

	run := func(cmd command) string {
		t.Helper()
		reply, after := h.handle(ctx, cmd)
		if after != nil {
			after()
		}
		return reply
	}

	reply := run(command{Name: commandSetup, Sub: subSet, Community: "1", Channel: "10", Type: channels.Vetting})
	if !strings.Contains(reply, "**vetting**") {
		t.Fatalf("set reply = %q", reply)
	}
	reply = run(command{Name: commandSetup, Sub: subSet, Community: "1", Channel: "11", Type: channels.Vetting})
	if !strings.Contains(reply, "<#10> already is one") {
		t.Fatalf("second vetting reply = %q", reply)
	}
	reply = run(command{Name: commandSetup, Sub: subToggle, Community: "1", Channel: "10"})
	if !strings.Contains(reply, "vetting-anon") {
		t.Fatalf("toggle reply = %q", reply)
	}
	reply = run(command{Name: commandSetup, Sub: subList, Community: "1"})
	if reply != "Configured channels:\n- <#10>: vetting-anon" {
		t.Fatalf("list reply = %q", reply)
	}
	reply = run(command{Name: commandSetup, Sub: subUnset, Community: "1", Channel: "10"})
	if !strings.Contains(reply, "no longer configured") {
		t.Fatalf("unset reply = %q", reply)
	}
	reply = run(command{Name: commandSetup, Sub: subUnset, Community: "1", Channel: "10"})
	if !strings.Contains(reply, "nothing to unset") {
		t.Fatalf("second unset reply = %q", reply)
	}

	// Only applied changes are announced in the affected channel.
	if got := len(sender.sent["10"]); got != 3 {
		t.Fatalf("announcements in 10 = %d, want 3: %v", got, sender.sent["10"])
	}
	if len(sender.sent["11"]) != 0 {
		t.Fatalf("rejected change announced: %v", sender.sent["11"])
	}
	if last := sender.sent["10"][2]; !strings.Contains(last, "no longer a vetting channel") {
		t.Fatalf("unset announcement = %q", last)
	}
}

func TestAnnouncementFailureKeepsChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHandler(&recordingSender{fails: true})

	reply, after := h.handle(ctx, command{Name: commandSetup, Sub: subSet, Community: "1", Channel: "10", Type: channels.Marketplace})
	if after == nil {
		t.Fatal("expected an announcement follow-up")
	}
	after()
	if !strings.Contains(reply, "marketplace") {
		t.Fatalf("reply = %q", reply)
	}
	if got := h.engine.Registry().Get(ctx, "1", "10"); got != channels.Marketplace {
		t.Fatalf("type after failed announcement = %v", got)
	}
}

func TestShuffleCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHandler(&recordingSender{})
	if _, err := h.settings.Ban(ctx, "1", "abc"); err != nil {
		t.Fatal(err)
	}

	reply, _ := h.handle(ctx, command{Name: commandShuffle, Community: "1", ResetBans: true})
	if !strings.Contains(reply, "#1") || !strings.Contains(reply, "ban list was cleared") {
		t.Fatalf("reply = %q", reply)
	}
	banned, err := h.settings.IsBanned(ctx, "1", "abc")
	if err != nil || banned {
		t.Fatalf("IsBanned() = %v, %v", banned, err)
	}
}

func TestCommandsDefinition(t *testing.T) {
	t.Parallel()
	cmds := Commands()
	if len(cmds) != 2 || cmds[0].Name != commandSetup || cmds[1].Name != commandShuffle {
		t.Fatalf("Commands() = %v", cmds)
	}
	subs := map[string]bool{}
	for _, opt := range cmds[0].Options {
		subs[opt.Name] = true
	}
	for _, name := range []string{subSet, subToggle, subUnset, subList} {
		if !subs[name] {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	if got := len(cmds[0].Options[0].Options[0].Choices); got != len(channels.Types()) {
		t.Fatalf("type choices = %d", got)
	}
}

func TestListReplyOrdersBySnowflake(t *testing.T) {
	t.Parallel()
	got := listReply(channels.ChannelMap{"100": channels.Marketplace, "99": channels.Confessional})
	want := "Configured channels:\n- <#99>: confessional\n- <#100>: marketplace"
	if got != want {
		t.Fatalf("listReply() = %q", got)
	}
}
