package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonk1e/RickBot/internal/command"
)

type fakeSend struct {
	sent []string
}

func (f *fakeSend) SendMessage(_ context.Context, _, content string) (string, error) {
	f.sent = append(f.sent, content)
	return fmt.Sprintf("sent%d", len(f.sent)), nil
}

func (f *fakeSend) DeleteMessage(context.Context, string, string) error { return nil }

type fakeFinder struct {
	searchResult Video
	searchErr    error
	byIDResult   Video
	byIDErr      error
	lastQuery    string
	lastID       string
}

func (f *fakeFinder) SearchVideo(_ context.Context, query string) (Video, error) {
	f.lastQuery = query
	return f.searchResult, f.searchErr
}

func (f *fakeFinder) VideoByID(_ context.Context, id string) (Video, error) {
	f.lastID = id
	return f.byIDResult, f.byIDErr
}

func newPlugin(finder *fakeFinder, urban *Urban) *Plugin {
	return New(finder, urban, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func invocation(send *fakeSend, args ...string) *command.Invocation {
	return &command.Invocation{
		Msg: &command.Message{
			ChannelID: "99",
			Guild:     command.Guild{ID: "42"},
		},
		Args: args,
		Send: send,
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=30", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://example.com/song.mp3", ""},
		{"not a url", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractVideoID(tc.url), tc.url)
	}
}

func TestYoutubeCommand(t *testing.T) {
	finder := &fakeFinder{searchResult: Video{ID: "dQw4w9WgXcQ", Title: "a classic"}}
	send := &fakeSend{}
	p := newPlugin(finder, nil)

	require.NoError(t, p.youtube(context.Background(), invocation(send, "never gonna")))

	assert.Equal(t, "never gonna", finder.lastQuery)
	require.Len(t, send.sent, 1)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", send.sent[0])
}

func TestYoutubeCommandNoResults(t *testing.T) {
	finder := &fakeFinder{searchErr: ErrNoResults}
	send := &fakeSend{}
	p := newPlugin(finder, nil)

	require.NoError(t, p.youtube(context.Background(), invocation(send, "gibberish")))

	require.Len(t, send.sent, 1)
	assert.Equal(t, msgNotFound, send.sent[0])
}

func TestUrbanCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/define", r.URL.Path)
		assert.Equal(t, "dank", r.URL.Query().Get("term"))
		fmt.Fprint(w, `{"list":[{"word":"dank","definition":"very good","example":"dank meme","permalink":"https://urbanup.com/1"}]}`)
	}))
	defer srv.Close()

	urban := &Urban{BaseURL: srv.URL, HTTP: srv.Client()}
	send := &fakeSend{}
	p := newPlugin(&fakeFinder{}, urban)

	require.NoError(t, p.urban(context.Background(), invocation(send, "dank")))

	require.Len(t, send.sent, 1)
	assert.Contains(t, send.sent[0], "**dank**")
	assert.Contains(t, send.sent[0], "very good")
	assert.Contains(t, send.sent[0], "<https://urbanup.com/1>")
}

func TestUrbanCommandNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"list":[]}`)
	}))
	defer srv.Close()

	urban := &Urban{BaseURL: srv.URL, HTTP: srv.Client()}
	send := &fakeSend{}
	p := newPlugin(&fakeFinder{}, urban)

	require.NoError(t, p.urban(context.Background(), invocation(send, "zzzz")))

	require.Len(t, send.sent, 1)
	assert.Equal(t, msgNotFound, send.sent[0])
}

func TestResolveTrackURLPassthrough(t *testing.T) {
	finder := &fakeFinder{byIDResult: Video{ID: "dQw4w9WgXcQ", Title: "a classic", Thumbnail: "thumb.jpg"}}
	p := newPlugin(finder, nil)

	track, err := p.ResolveTrack(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", track.URL, "URLs are kept verbatim")
	assert.Equal(t, "a classic", track.Title)
	assert.Equal(t, "thumb.jpg", track.Thumbnail)
	assert.Equal(t, "dQw4w9WgXcQ", finder.lastID)
}

func TestResolveTrackURLWithoutVideoID(t *testing.T) {
	p := newPlugin(&fakeFinder{}, nil)

	track, err := p.ResolveTrack(context.Background(), "https://example.com/song.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/song.mp3", track.URL)
	assert.Equal(t, "https://example.com/song.mp3", track.Title)
}

func TestResolveTrackSearch(t *testing.T) {
	finder := &fakeFinder{searchResult: Video{ID: "abc123def45", Title: "found it"}}
	p := newPlugin(finder, nil)

	track, err := p.ResolveTrack(context.Background(), "some song")
	require.NoError(t, err)
	assert.Equal(t, "https://youtube.com/watch?v=abc123def45", track.URL)
	assert.Equal(t, "found it", track.Title)
}

func TestResolveTrackSearchMiss(t *testing.T) {
	finder := &fakeFinder{searchErr: ErrNoResults}
	p := newPlugin(finder, nil)

	_, err := p.ResolveTrack(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoResults)
}
