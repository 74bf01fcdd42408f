// Package search implements the lookup commands (!youtube, !urban) and the
// track resolver the music plugin uses to turn queries into playable tracks.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tonk1e/RickBot/internal/command"
	"github.com/Tonk1e/RickBot/internal/plugins/music"
)

// PluginName scopes the search feature flags ("Search.{guild}:").
const PluginName = "Search"

const msgNotFound = "I didn't find anything :cry:..."

// Plugin bundles the lookup commands.
type Plugin struct {
	Videos VideoFinder
	Urban  *Urban
	Log    *slog.Logger
}

func New(videos VideoFinder, urban *Urban, log *slog.Logger) *Plugin {
	return &Plugin{Videos: videos, Urban: urban, Log: log}
}

// Commands returns the search command table entries.
func (p *Plugin) Commands() []*command.Command {
	return []*command.Command{
		{
			Plugin: PluginName, Name: "youtube", Pattern: `^!youtube (.*)`,
			DBCheck: true, DBName: "youtube",
			Description: "Searches YouTube and posts the first matching video.",
			Usage:       "!youtube video_name",
			Handler:     p.youtube,
		},
		{
			Plugin: PluginName, Name: "urban", Pattern: `^!urban (.*)`,
			DBCheck: true, DBName: "urban",
			Description: "Looks a word up on Urban Dictionary.",
			Usage:       "!urban dank_word",
			Handler:     p.urban,
		},
	}
}

func (p *Plugin) youtube(ctx context.Context, inv *command.Invocation) error {
	query := strings.TrimSpace(inv.Args[0])
	if query == "" {
		return nil
	}

	video, err := p.Videos.SearchVideo(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrNoResults) {
			p.Log.Warn("youtube search failed", "query", query, "error", err)
		}
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgNotFound)
		return serr
	}

	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, video.ShortURL())
	return err
}

func (p *Plugin) urban(ctx context.Context, inv *command.Invocation) error {
	term := strings.TrimSpace(inv.Args[0])
	if term == "" {
		return nil
	}

	def, err := p.Urban.Define(ctx, term)
	if err != nil {
		if !errors.Is(err, ErrNoResults) {
			p.Log.Warn("urban dictionary lookup failed", "term", term, "error", err)
		}
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, msgNotFound)
		return serr
	}

	resp := fmt.Sprintf("\n **%s** ```\n%s``` \n**example:** %s \n<%s>",
		def.Word, def.Definition, def.Example, def.Permalink)
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

// ResolveTrack turns a URL or free-text query into a track for the music
// queue. URLs pass through; when the URL carries a recognizable video ID the
// title and thumbnail are filled in from the Data API, otherwise the first
// search result wins.
func (p *Plugin) ResolveTrack(ctx context.Context, query string) (music.Track, error) {
	if strings.Contains(query, "http") {
		track := music.Track{URL: query, Title: query}
		if id := extractVideoID(query); id != "" {
			video, err := p.Videos.VideoByID(ctx, id)
			if err == nil {
				track.Title = video.Title
				track.Thumbnail = video.Thumbnail
			}
		}
		return track, nil
	}

	video, err := p.Videos.SearchVideo(ctx, query)
	if err != nil {
		return music.Track{}, err
	}
	return music.Track{URL: video.URL(), Title: video.Title, Thumbnail: video.Thumbnail}, nil
}
