package command

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Role is the slice of a platform role the core cares about.
type Role struct {
	ID          string
	Name        string
	Permissions int64
}

// Author is the message author with their resolved role set.
type Author struct {
	ID            string
	Name          string
	Discriminator string
	AvatarURL     string
	Roles         []Role
}

// Tag returns the classic name#discriminator form used in invocation logs.
func (a Author) Tag() string {
	return a.Name + "#" + a.Discriminator
}

// HasPermission reports whether any of the author's roles carries one of the
// given permission bits.
func (a Author) HasPermission(bits int64) bool {
	for _, r := range a.Roles {
		if r.Permissions&bits != 0 {
			return true
		}
	}
	return false
}

// HasRole reports whether the author holds the role with the given ID.
func (a Author) HasRole(id string) bool {
	for _, r := range a.Roles {
		if r.ID == id {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the author is the guild owner or holds a
// manage-guild/administrator permission bit.
func (a Author) IsAdmin(g Guild) bool {
	if a.ID == g.OwnerID {
		return true
	}
	return a.HasPermission(discordgo.PermissionManageGuild | discordgo.PermissionAdministrator)
}

// Guild is the server a message arrived in.
type Guild struct {
	ID      string
	Name    string
	OwnerID string
}

// Message is the platform-independent message event the dispatcher and the
// passive moderation hooks consume.
type Message struct {
	ID        string
	ChannelID string
	Content   string
	Author    Author
	Guild     Guild
	Timestamp time.Time
	Mentions  []string // mentioned user IDs, in order of appearance
}

// Messenger is the outbound side of the platform the handlers need:
// send a message (returning its ID so it can be deleted later) and delete one.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
