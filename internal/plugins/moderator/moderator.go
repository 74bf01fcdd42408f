// Package moderator implements the per-guild moderation commands (message
// purge, mute, slowmode) and the passive hooks that scan every message for
// banned words and enforce slowmode.
package moderator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tonk1e/RickBot/internal/command"
	"github.com/Tonk1e/RickBot/internal/storage"
)

// PluginName scopes the moderator keys ("Moderator.{guild}:").
const PluginName = "Moderator"

// History reads recent channel messages for purging. The platform returns
// them newest first.
type History interface {
	Messages(ctx context.Context, channelID string, limit int) ([]command.Message, error)
}

// PermissionEditor alters a member's per-channel permission overwrite.
type PermissionEditor interface {
	SetSendMessages(ctx context.Context, channelID, userID string, allow bool) error
}

// MemberFetcher resolves a guild member with their role set, used to check
// the authorization of a *target* member (not the message author).
type MemberFetcher interface {
	Member(ctx context.Context, guildID, userID string) (command.Author, error)
}

// Plugin bundles the moderation commands and passive hooks. Store backs the
// passive hooks, which run outside the dispatcher and resolve their own
// guild namespace.
type Plugin struct {
	Store   *storage.Client
	Send    command.Messenger
	History History
	Perms   PermissionEditor
	Members MemberFetcher
	Log     *slog.Logger

	// DeleteLimiter paces bulk message deletion against the platform's
	// rate limits.
	DeleteLimiter *rate.Limiter
	// ConfirmDelay is how long a purge confirmation stays before deleting
	// itself; WarnDelay the same for banned-word warnings.
	ConfirmDelay time.Duration
	WarnDelay    time.Duration
}

// New returns a moderator plugin with production pacing and delays.
func New(store *storage.Client, send command.Messenger, history History, perms PermissionEditor, members MemberFetcher, log *slog.Logger) *Plugin {
	return &Plugin{
		Store:         store,
		Send:          send,
		History:       history,
		Perms:         perms,
		Members:       members,
		Log:           log,
		DeleteLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 5),
		ConfirmDelay:  8 * time.Second,
		WarnDelay:     3 * time.Second,
	}
}

// Commands returns the moderation command table entries.
func (p *Plugin) Commands() []*command.Command {
	return []*command.Command{
		{
			Plugin: PluginName, Name: "clear", Pattern: `^!clear ([0-9]+)$`,
			DBCheck: true, DBName: "clear", RequireOneOfRoles: "roles",
			Description: "Deletes the last N messages in the channel.",
			Usage:       "!clear 25",
			Handler:     p.clearNum,
		},
		{
			Plugin: PluginName, Name: "clearuser", Pattern: `^!clear <@!?([0-9]+)>$`,
			DBCheck: true, DBName: "clear", RequireOneOfRoles: "roles",
			Description: "Deletes the mentioned user's recent messages.",
			Usage:       "!clear @user",
			Handler:     p.clearUser,
		},
		{
			Plugin: PluginName, Name: "mute", Pattern: `^!mute <@!?([0-9]+)>$`,
			DBCheck: true, RequireOneOfRoles: "roles",
			Description: "Mutes the mentioned user in this channel.",
			Usage:       "!mute @user",
			Handler:     p.mute,
		},
		{
			Plugin: PluginName, Name: "unmute", Pattern: `^!unmute <@!?([0-9]+)>$`,
			DBCheck: true, DBName: "mute", RequireOneOfRoles: "roles",
			Description: "Unmutes the mentioned user in this channel.",
			Usage:       "!unmute @user",
			Handler:     p.unmute,
		},
		{
			Plugin: PluginName, Name: "slowmode", Pattern: `^!slowmode ([0-9]+)`,
			DBCheck: true, RequireOneOfRoles: "roles",
			Description: "Limits everyone to one message per interval in this channel.",
			Usage:       "!slowmode 10",
			Handler:     p.slowmode,
		},
		{
			Plugin: PluginName, Name: "slowoff", Pattern: `^!slowoff`,
			DBCheck: true, DBName: "slowmode", RequireOneOfRoles: "roles",
			Description: "Turns slowmode off for this channel.",
			Usage:       "!slowoff",
			Handler:     p.slowoff,
		},
	}
}

// mute denies the target member the send-messages permission in the channel.
// A target who is themselves authorized cannot be muted; that is a silent
// no-op, like the other expected non-outcomes.
func (p *Plugin) mute(ctx context.Context, inv *command.Invocation) error {
	return p.setMuted(ctx, inv, true)
}

func (p *Plugin) unmute(ctx context.Context, inv *command.Invocation) error {
	return p.setMuted(ctx, inv, false)
}

func (p *Plugin) setMuted(ctx context.Context, inv *command.Invocation, muted bool) error {
	if len(inv.Msg.Mentions) == 0 {
		return nil
	}
	targetID := inv.Msg.Mentions[0]

	target, err := p.Members.Member(ctx, inv.Msg.Guild.ID, targetID)
	if err != nil {
		return fmt.Errorf("fetch target member: %w", err)
	}
	authorized, err := command.IsAuthorized(ctx, inv.Storage, target)
	if err != nil {
		return err
	}
	if authorized {
		return nil
	}

	if err := p.Perms.SetSendMessages(ctx, inv.Msg.ChannelID, targetID, !muted); err != nil {
		return fmt.Errorf("edit channel permission: %w", err)
	}

	var resp string
	if muted {
		resp = fmt.Sprintf("<@%s> is now muted!", targetID)
	} else {
		resp = fmt.Sprintf("<@%s> is no longer muted! They can speak now! :wink:", targetID)
	}
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

// deleteLater deletes a message after a delay without blocking the handler.
func (p *Plugin) deleteLater(channelID, messageID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := p.Send.DeleteMessage(context.Background(), channelID, messageID); err != nil {
			p.Log.Warn("failed to delete timed message", "channel", channelID, "error", err)
		}
	})
}
