package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/Tonk1e/RickBot/internal/command"
)

// Platform adapts a discordgo session to the narrow interfaces the plugins
// consume, so everything above this package is testable without a live
// gateway connection.
type Platform struct {
	session *discordgo.Session
}

// SendMessage posts to a channel and returns the new message's ID.
func (p *Platform) SendMessage(_ context.Context, channelID, content string) (string, error) {
	m, err := p.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return m.ID, nil
}

func (p *Platform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return p.session.ChannelMessageDelete(channelID, messageID)
}

// Messages returns up to limit recent channel messages, newest first.
func (p *Platform) Messages(_ context.Context, channelID string, limit int) ([]command.Message, error) {
	var out []command.Message
	before := ""

	// The API pages 100 at a time.
	for len(out) < limit {
		batch := limit - len(out)
		if batch > 100 {
			batch = 100
		}
		msgs, err := p.session.ChannelMessages(channelID, batch, before, "", "")
		if err != nil {
			return nil, fmt.Errorf("fetch channel messages: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			out = append(out, p.convertMessage(m))
		}
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

// SetSendMessages edits the member's channel permission overwrite: allow
// restores the send-messages bit, deny revokes it.
func (p *Platform) SetSendMessages(_ context.Context, channelID, userID string, allow bool) error {
	var allowBits, denyBits int64
	if allow {
		allowBits = discordgo.PermissionSendMessages
	} else {
		denyBits = discordgo.PermissionSendMessages
	}
	return p.session.ChannelPermissionSet(channelID, userID,
		discordgo.PermissionOverwriteTypeMember, allowBits, denyBits)
}

// Member resolves a guild member with their role set.
func (p *Platform) Member(_ context.Context, guildID, userID string) (command.Author, error) {
	member, err := p.session.GuildMember(guildID, userID)
	if err != nil {
		return command.Author{}, fmt.Errorf("fetch guild member: %w", err)
	}
	if member.User == nil {
		return command.Author{}, fmt.Errorf("member %s has no user", userID)
	}
	return command.Author{
		ID:            member.User.ID,
		Name:          member.User.Username,
		Discriminator: member.User.Discriminator,
		AvatarURL:     member.User.AvatarURL(""),
		Roles:         p.resolveRoles(guildID, member.Roles),
	}, nil
}

// Joined reports whether the bot holds a voice connection in the guild.
func (p *Platform) Joined(guildID string) bool {
	p.session.RLock()
	defer p.session.RUnlock()
	_, ok := p.session.VoiceConnections[guildID]
	return ok
}

func (p *Platform) Join(_ context.Context, guildID, channelID string) error {
	_, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	return err
}

func (p *Platform) Leave(_ context.Context, guildID string) error {
	p.session.RLock()
	vc, ok := p.session.VoiceConnections[guildID]
	p.session.RUnlock()
	if !ok {
		return nil
	}
	return vc.Disconnect()
}

// UserChannel returns the voice channel the user occupies, or "".
func (p *Platform) UserChannel(guildID, userID string) (string, error) {
	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("guild state: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", nil
}

// SetGame advertises the playing-a-game presence.
func (p *Platform) SetGame(name string) error {
	return p.session.UpdateGameStatus(0, name)
}

// resolveRoles maps member role IDs to the role metadata the authorization
// checks need. Unknown IDs (stale state) are skipped.
func (p *Platform) resolveRoles(guildID string, roleIDs []string) []command.Role {
	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		return nil
	}

	byID := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		byID[r.ID] = r
	}

	var roles []command.Role
	for _, id := range roleIDs {
		r, ok := byID[id]
		if !ok {
			continue
		}
		roles = append(roles, command.Role{ID: r.ID, Name: r.Name, Permissions: r.Permissions})
	}
	return roles
}

// convertMessage translates a raw API message. Role resolution needs the
// guild ID, which history responses omit, so roles stay empty here; the
// purge path never needs them.
func (p *Platform) convertMessage(m *discordgo.Message) command.Message {
	msg := command.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = command.Author{
			ID:            m.Author.ID,
			Name:          m.Author.Username,
			Discriminator: m.Author.Discriminator,
			AvatarURL:     m.Author.AvatarURL(""),
		}
	}
	for _, u := range m.Mentions {
		msg.Mentions = append(msg.Mentions, u.ID)
	}
	return msg
}
