package music

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tonk1e/RickBot/internal/command"
)

// VoiceSession is the slice of the platform's voice transport the music
// commands need.
type VoiceSession interface {
	Joined(guildID string) bool
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) error
	// UserChannel returns the voice channel the user currently occupies,
	// or "" if they are not in one.
	UserChannel(guildID, userID string) (string, error)
}

// TrackResolver turns a search query or URL into a playable track.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, query string) (Track, error)
}

const (
	msgNotInVoice     = "I am not connected to any voice channels :grimacing:..."
	msgNothingToPlay  = "I haven't got anything to play :grimacing:..."
	msgGenericFailure = "An error occurred. Sorry! :cry:"
)

// Plugin bundles the music commands around a coordinator.
type Plugin struct {
	Coord       *Coordinator
	Voice       VoiceSession
	Resolver    TrackResolver
	PlaylistURL string // base URL for the dashboard playlist page
	Log         *slog.Logger
}

// Commands returns the music command table entries. Every command is gated
// on the guild's "allowed_roles" set.
func (p *Plugin) Commands() []*command.Command {
	return []*command.Command{
		{
			Plugin: PluginName, Name: "play", Pattern: `^!play$`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Makes me play the next song, which is on the queue.",
			Usage:             "!play",
			Handler:           p.play,
		},
		{
			Plugin: PluginName, Name: "next", Pattern: `^!next$`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Makes me jump forward to the next song on the queue.",
			Usage:             "!next",
			Handler:           p.play,
		},
		{
			Plugin: PluginName, Name: "stop", Pattern: `^!stop$`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Will make me stop playing music.",
			Usage:             "!stop",
			Handler:           p.stop,
		},
		{
			Plugin: PluginName, Name: "add", Pattern: `^!add (.*)`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Adds a new song to the queue.",
			Usage:             "!add",
			Handler:           p.add,
		},
		{
			Plugin: PluginName, Name: "playlist", Pattern: `^!playlist$`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Shows you all the songs in the playlist.",
			Usage:             "!playlist",
			Handler:           p.playlist,
		},
		{
			Plugin: PluginName, Name: "join", Pattern: `^!join`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Makes me join the voice channel that you are in.",
			Usage:             "!join",
			Handler:           p.join,
		},
		{
			Plugin: PluginName, Name: "leave", Pattern: `^!leave`,
			RequireOneOfRoles: "allowed_roles",
			Description:       "Makes me leave my voice channel.",
			Usage:             "!leave",
			Handler:           p.leave,
		},
	}
}

// play starts the next queued track. Used by both !play and !next; the
// coordinator's swap makes them the same operation.
func (p *Plugin) play(ctx context.Context, inv *command.Invocation) error {
	guildID := inv.Msg.Guild.ID
	if !p.Voice.Joined(guildID) {
		_, err := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgNotInVoice)
		return err
	}

	err := p.Coord.PlayNext(ctx, guildID)
	switch {
	case err == nil:
		return nil
	case err == ErrEmptyQueue:
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgNothingToPlay)
		return serr
	default:
		p.Log.Error("failed to start playback", "guild", guildID, "error", err)
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgGenericFailure)
		return serr
	}
}

func (p *Plugin) stop(ctx context.Context, inv *command.Invocation) error {
	p.Coord.Stop(ctx, inv.Msg.Guild.ID)
	return nil
}

func (p *Plugin) add(ctx context.Context, inv *command.Invocation) error {
	query := strings.TrimSpace(inv.Args[0])
	if query == "" {
		return nil
	}
	if p.Resolver == nil {
		_, err := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, "Didn't find anything :cry:!")
		return err
	}

	track, err := p.Resolver.ResolveTrack(ctx, query)
	if err != nil {
		p.Log.Warn("track lookup failed", "query", query, "error", err)
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, "Didn't find anything :cry:!")
		return serr
	}

	track.AddedBy = Requester{
		Name:          inv.Msg.Author.Name,
		Discriminator: inv.Msg.Author.Discriminator,
		Avatar:        inv.Msg.Author.AvatarURL,
	}
	if err := p.Coord.Enqueue(ctx, inv.Msg.Guild.ID, track); err != nil {
		p.Log.Error("failed to enqueue track", "guild", inv.Msg.Guild.ID, "error", err)
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgGenericFailure)
		return serr
	}

	resp := fmt.Sprintf("**%s** has been added! :ok_hand:", track.Title)
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

func (p *Plugin) playlist(ctx context.Context, inv *command.Invocation) error {
	guildID := inv.Msg.Guild.ID
	var b strings.Builder

	np, err := p.Coord.NowPlaying(ctx, guildID)
	if err != nil {
		return err
	}
	if np != nil {
		fmt.Fprintf(&b, "`NOW PLAYING` :notes: **%s** added by **%s**\n\n", np.Title, np.AddedBy.Name)
	}

	queue, err := p.Coord.Queue(ctx, guildID, 5)
	if err != nil {
		return err
	}
	for i, t := range queue {
		fmt.Fprintf(&b, "`#%d` **%s** added by **%s**\n", i+1, t.Title, t.AddedBy.Name)
	}

	if p.PlaylistURL != "" {
		fmt.Fprintf(&b, "\nFull playlist: <%s/%s>", p.PlaylistURL, guildID)
	}

	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, b.String())
	return err
}

func (p *Plugin) join(ctx context.Context, inv *command.Invocation) error {
	guildID := inv.Msg.Guild.ID
	channelID, err := p.Voice.UserChannel(guildID, inv.Msg.Author.ID)
	if err != nil {
		return err
	}
	if channelID == "" {
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, "You are not in a voice channel! :grimacing:")
		return serr
	}

	if err := p.Voice.Join(ctx, guildID, channelID); err != nil {
		p.Log.Error("failed to join voice channel", "guild", guildID, "channel", channelID, "error", err)
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgGenericFailure)
		return serr
	}

	resp := fmt.Sprintf("Connecting to voice channel <#%s>", channelID)
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

func (p *Plugin) leave(ctx context.Context, inv *command.Invocation) error {
	guildID := inv.Msg.Guild.ID
	p.Coord.Stop(ctx, guildID)
	return p.Voice.Leave(ctx, guildID)
}
