package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonk1e/RickBot/internal/archive"
	"github.com/Tonk1e/RickBot/internal/config"
	"github.com/Tonk1e/RickBot/internal/storage"
)

// fakeDiscord stubs the OAuth token and identity endpoints.
func fakeDiscord(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"7","username":"tester","avatar":""}`)
	})
	mux.HandleFunc("/users/@me/guilds", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id":"42","name":"managed","owner":false,"permissions":"32"},
			{"id":"43","name":"member-only","owner":false,"permissions":"0"}
		]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type dashFixture struct {
	srv    *httptest.Server
	client *http.Client
	store  *storage.Client
}

func newDashFixture(t *testing.T, history HistoryStore) *dashFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := storage.NewClient(rdb)

	discord := fakeDiscord(t)
	cfg := &config.Dashboard{
		SecretKey:         "test-secret",
		OAuthClientID:     "client",
		OAuthClientSecret: "secret",
		OAuthRedirectURL:  "http://localhost/confirm_login",
		APIBaseURL:        discord.URL,
	}

	server := NewServer(cfg, store, history, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		// Stop at the external authorize redirect so the test can read it.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &dashFixture{srv: srv, client: client, store: store}
}

// logIn walks the OAuth flow against the stubbed Discord API and leaves a
// session cookie in the fixture's jar.
func (f *dashFixture) logIn(t *testing.T) {
	t.Helper()

	resp, err := f.client.Get(f.srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	authorize, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := authorize.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = f.client.Get(f.srv.URL + "/confirm_login?code=abc&state=" + state)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *dashFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	f := newDashFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAPIRequiresLogin(t *testing.T) {
	f := newDashFixture(t, nil)
	resp, _ := f.do(t, http.MethodGet, "/api/guilds/42/moderation/banned-words", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGuildAccessRequiresManagement(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	// Guild 43 is one the user belongs to but does not manage.
	resp, _ := f.do(t, http.MethodGet, "/api/guilds/43/moderation/banned-words", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBannedWordsRoundTrip(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	resp, _ := f.do(t, http.MethodPut, "/api/guilds/42/moderation/banned-words",
		map[string]string{"bannedWords": "foo,bar"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/guilds/42/moderation/banned-words", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "foo,bar", body["bannedWords"])

	// The write landed in the key the bot reads.
	words, err := f.store.Namespace("Moderator", "42").Get(context.Background(), "banned_words")
	require.NoError(t, err)
	assert.Equal(t, "foo,bar", words)
}

func TestFeatureFlagToggle(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	resp, body := f.do(t, http.MethodGet, "/api/guilds/42/plugins/Moderator/commands/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["enabled"])

	resp, _ = f.do(t, http.MethodPut, "/api/guilds/42/plugins/Moderator/commands/clear",
		map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	v, err := f.store.Namespace("Moderator", "42").Get(context.Background(), "clear")
	require.NoError(t, err)
	assert.NotEmpty(t, v, "the dispatcher gate reads this key")

	resp, _ = f.do(t, http.MethodPut, "/api/guilds/42/plugins/Moderator/commands/clear",
		map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	v, err = f.store.Namespace("Moderator", "42").Get(context.Background(), "clear")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestRoleSetRoundTrip(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	resp, _ := f.do(t, http.MethodPut, "/api/guilds/42/moderation/roles",
		map[string][]string{"roles": {"r1", "r2"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	members, err := f.store.Namespace("Moderator", "42").SMembers(context.Background(), "roles")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, members)

	// A replacement wipes roles no longer listed.
	resp, _ = f.do(t, http.MethodPut, "/api/guilds/42/moderation/roles",
		map[string][]string{"roles": {"r3"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	members, err = f.store.Namespace("Moderator", "42").SMembers(context.Background(), "roles")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r3"}, members)
}

func TestCooldownRoundTrip(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	resp, _ := f.do(t, http.MethodPut, "/api/guilds/42/plugins/Moderator/cooldowns/cooldown:roll",
		map[string]int{"seconds": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/guilds/42/plugins/Moderator/cooldowns/cooldown:roll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 20, body["seconds"])

	resp, _ = f.do(t, http.MethodPut, "/api/guilds/42/plugins/Moderator/cooldowns/cooldown:roll",
		map[string]int{"seconds": -5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaylist(t *testing.T) {
	f := newDashFixture(t, nil)
	f.logIn(t)

	st := f.store.Namespace("Music", "42")
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "now_playing",
		`{"url":"https://youtu.be/a","title":"current","thumbnail":"","addedBy":{"name":"dj"}}`))
	require.NoError(t, st.RPush(ctx, "request_queue",
		`{"url":"https://youtu.be/b","title":"queued","thumbnail":"","addedBy":{"name":"dj"}}`))

	resp, body := f.do(t, http.MethodGet, "/api/guilds/42/playlist", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	np, ok := body["nowPlaying"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "current", np["title"])

	queue, ok := body["queue"].([]any)
	require.True(t, ok)
	require.Len(t, queue, 1)
}

type fakeHistory struct {
	records []archive.Record
}

func (f *fakeHistory) Recent(_ context.Context, guildID string, limit int) ([]archive.Record, error) {
	var out []archive.Record
	for _, r := range f.records {
		if r.GuildID == guildID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{records: []archive.Record{
		{GuildID: "42", Command: "clear", Username: "tester"},
		{GuildID: "43", Command: "mute", Username: "other"},
	}}
	f := newDashFixture(t, hist)
	f.logIn(t)

	resp, body := f.do(t, http.MethodGet, "/api/guilds/42/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records, ok := body["history"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	first := records[0].(map[string]any)
	assert.Equal(t, "clear", first["command"])
}
