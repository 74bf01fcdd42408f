package dashboard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/bwmarrin/discordgo"
)

const (
	sessionUserKey   = "user"
	sessionGuildsKey = "managed_guilds"
	sessionStateKey  = "oauth_state"
)

// discordUser is the identity slice kept in the session.
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type discordGuild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Owner       bool   `json:"owner"`
	Permissions int64  `json:"permissions,string"`
}

func (g discordGuild) managed() bool {
	return g.Owner || g.Permissions&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}

func (s *Server) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.OAuthClientID,
		ClientSecret: s.cfg.OAuthClientSecret,
		RedirectURL:  s.cfg.OAuthRedirectURL,
		Scopes:       []string{"identify", "guilds"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.cfg.APIBaseURL + "/oauth2/authorize",
			TokenURL: s.cfg.APIBaseURL + "/oauth2/token",
		},
	}
}

// login starts the OAuth dance, stashing a random state in the session.
func (s *Server) login(c *gin.Context) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate state"})
		return
	}
	state := hex.EncodeToString(buf)

	session := sessions.Default(c)
	session.Set(sessionStateKey, state)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.Redirect(http.StatusFound, s.oauthConfig().AuthCodeURL(state))
}

// confirmLogin finishes the OAuth dance: exchange the code, resolve the user
// and the guilds they manage, persist both in the session.
func (s *Server) confirmLogin(c *gin.Context) {
	session := sessions.Default(c)

	state, _ := session.Get(sessionStateKey).(string)
	if state == "" || c.Query("state") != state {
		c.JSON(http.StatusForbidden, gin.H{"error": "state mismatch"})
		return
	}
	session.Delete(sessionStateKey)

	token, err := s.oauthConfig().Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		s.log.Warn("oauth exchange failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization failed"})
		return
	}

	client := s.oauthConfig().Client(c.Request.Context(), token)
	user, err := s.fetchUser(c.Request.Context(), client)
	if err != nil {
		s.log.Warn("failed to fetch user identity", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity lookup failed"})
		return
	}
	guilds, err := s.fetchManagedGuilds(c.Request.Context(), client)
	if err != nil {
		s.log.Warn("failed to fetch user guilds", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "guild lookup failed"})
		return
	}

	userJSON, _ := json.Marshal(user)
	guildsJSON, _ := json.Marshal(guilds)
	session.Set(sessionUserKey, string(userJSON))
	session.Set(sessionGuildsKey, string(guildsJSON))
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "guilds": guilds})
}

func (s *Server) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) fetchUser(ctx context.Context, client *http.Client) (discordUser, error) {
	var user discordUser
	err := s.getJSON(ctx, client, s.cfg.APIBaseURL+"/users/@me", &user)
	return user, err
}

// fetchManagedGuilds returns the IDs of the guilds the user can administer.
func (s *Server) fetchManagedGuilds(ctx context.Context, client *http.Client) ([]discordGuild, error) {
	var guilds []discordGuild
	if err := s.getJSON(ctx, client, s.cfg.APIBaseURL+"/users/@me/guilds", &guilds); err != nil {
		return nil, err
	}

	managed := guilds[:0]
	for _, g := range guilds {
		if g.managed() {
			managed = append(managed, g)
		}
	}
	return managed, nil
}

func (s *Server) getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// currentUser pulls the logged-in user out of the session.
func currentUser(c *gin.Context) (discordUser, bool) {
	raw, _ := sessions.Default(c).Get(sessionUserKey).(string)
	if raw == "" {
		return discordUser{}, false
	}
	var user discordUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return discordUser{}, false
	}
	return user, true
}

// requireUser rejects unauthenticated requests.
func requireUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return
	}
	c.Next()
}

// requireGuildManager rejects requests for guilds the session user does not
// manage. The managed set was resolved at login time.
func requireGuildManager(c *gin.Context) {
	guildID := c.Param("guild")
	raw, _ := sessions.Default(c).Get(sessionGuildsKey).(string)

	var guilds []discordGuild
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &guilds)
	}
	for _, g := range guilds {
		if g.ID == guildID {
			c.Next()
			return
		}
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "you do not manage this guild"})
}
