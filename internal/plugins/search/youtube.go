package search

import (
	"context"
	"fmt"
	"regexp"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Video is the slice of YouTube metadata the bot cares about.
type Video struct {
	ID        string
	Title     string
	Thumbnail string
}

func (v Video) URL() string {
	return "https://youtube.com/watch?v=" + v.ID
}

// ShortURL is the compact form posted in chat.
func (v Video) ShortURL() string {
	return "https://youtu.be/" + v.ID
}

// ErrNoResults is returned when a lookup matched nothing.
var ErrNoResults = fmt.Errorf("no results")

// VideoFinder resolves search queries and video IDs to video metadata.
type VideoFinder interface {
	SearchVideo(ctx context.Context, query string) (Video, error)
	VideoByID(ctx context.Context, id string) (Video, error)
}

// YouTube is the VideoFinder backed by the YouTube Data API.
type YouTube struct {
	svc *yt.Service
}

// NewYouTube builds a Data API client authenticated by API key. Extra options
// are appended after the key, so tests can point it at a stub endpoint.
func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

// SearchVideo returns the first video result for the query.
func (y *YouTube) SearchVideo(ctx context.Context, query string) (Video, error) {
	resp, err := y.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return Video{}, fmt.Errorf("youtube search: %w", err)
	}
	if len(resp.Items) == 0 {
		return Video{}, ErrNoResults
	}

	item := resp.Items[0]
	v := Video{ID: item.Id.VideoId, Title: item.Snippet.Title}
	if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
		v.Thumbnail = item.Snippet.Thumbnails.Default.Url
	}
	return v, nil
}

// VideoByID fetches metadata for a known video ID.
func (y *YouTube) VideoByID(ctx context.Context, id string) (Video, error) {
	resp, err := y.svc.Videos.List([]string{"snippet"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return Video{}, fmt.Errorf("youtube videos: %w", err)
	}
	if len(resp.Items) == 0 {
		return Video{}, ErrNoResults
	}

	item := resp.Items[0]
	v := Video{ID: item.Id, Title: item.Snippet.Title}
	if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
		v.Thumbnail = item.Snippet.Thumbnails.Default.Url
	}
	return v, nil
}

var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/|/embed/)([A-Za-z0-9_-]{11})`)

// extractVideoID pulls the 11-character video ID out of a YouTube URL,
// returning "" when the URL carries none.
func extractVideoID(url string) string {
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}
