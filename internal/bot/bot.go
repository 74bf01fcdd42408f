// Package bot wires the discordgo gateway to the dispatcher and the plugins'
// passive hooks.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/Tonk1e/RickBot/internal/command"
	"github.com/Tonk1e/RickBot/internal/plugins/moderator"
	"github.com/Tonk1e/RickBot/internal/plugins/presence"
)

// Bot owns the gateway session. Dispatch and the plugin fields are wired by
// the caller between New and Run.
type Bot struct {
	Session   *discordgo.Session
	Dispatch  *command.Dispatcher
	Moderator *moderator.Plugin
	Presence  *presence.Plugin
	Log       *slog.Logger
}

// New creates the session without connecting, so the caller can build the
// platform adapter and plugins around it first.
func New(token string, log *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	session.State.MaxMessageCount = 200

	return &Bot{Session: session, Log: log}, nil
}

// Platform returns the adapter the plugins talk through.
func (b *Bot) Platform() *Platform {
	return &Platform{session: b.Session}
}

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.Session.AddHandler(b.onReady)
	b.Session.AddHandler(b.onMessageCreate)
	b.Session.AddHandler(b.onMessageUpdate)

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.Session.Close()

	b.Log.Info("gateway connected")
	<-ctx.Done()
	b.Log.Info("shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	b.Log.Info("ready", "user", s.State.User.Username)
	if b.Presence != nil {
		b.Presence.OnReady(b.Platform())
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.GuildID == "" {
		return
	}

	msg, err := b.convertEvent(s, m.Message)
	if err != nil {
		b.Log.Warn("failed to convert message event", "error", err)
		return
	}

	ctx := context.Background()
	if b.Moderator != nil {
		if err := b.Moderator.OnMessage(ctx, msg); err != nil {
			b.Log.Error("moderation hook failed", "guild", msg.Guild.ID, "error", err)
		}
	}
	if b.Dispatch != nil {
		if err := b.Dispatch.Dispatch(ctx, msg); err != nil {
			b.Log.Error("command failed", "guild", msg.Guild.ID, "content", msg.Content, "error", err)
		}
	}
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	// Edits of embeds and system messages arrive without an author.
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.GuildID == "" {
		return
	}

	msg, err := b.convertEvent(s, m.Message)
	if err != nil {
		b.Log.Warn("failed to convert edit event", "error", err)
		return
	}

	if b.Moderator != nil {
		if err := b.Moderator.OnMessageEdit(context.Background(), msg); err != nil {
			b.Log.Error("moderation hook failed on edit", "guild", msg.Guild.ID, "error", err)
		}
	}
}

// convertEvent builds the platform-independent message, resolving the guild
// and the author's roles from gateway state.
func (b *Bot) convertEvent(s *discordgo.Session, m *discordgo.Message) (*command.Message, error) {
	guild, err := s.State.Guild(m.GuildID)
	if err != nil {
		guild, err = s.Guild(m.GuildID)
		if err != nil {
			return nil, fmt.Errorf("resolve guild %s: %w", m.GuildID, err)
		}
	}

	platform := b.Platform()
	msg := platform.convertMessage(m)
	msg.Guild = command.Guild{ID: guild.ID, Name: guild.Name, OwnerID: guild.OwnerID}

	if m.Member != nil {
		msg.Author.Roles = platform.resolveRoles(m.GuildID, m.Member.Roles)
	}
	return &msg, nil
}
