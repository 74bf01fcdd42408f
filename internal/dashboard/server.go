// Package dashboard serves the companion web API: Discord OAuth login and
// per-guild configuration CRUD over the same keyspace the bot reads.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tonk1e/RickBot/internal/archive"
	"github.com/Tonk1e/RickBot/internal/config"
	"github.com/Tonk1e/RickBot/internal/storage"
)

// HistoryStore is the archive slice the dashboard reads. Nil disables the
// history endpoint.
type HistoryStore interface {
	Recent(ctx context.Context, guildID string, limit int) ([]archive.Record, error)
}

// Server is the dashboard HTTP API.
type Server struct {
	cfg     *config.Dashboard
	store   *storage.Client
	history HistoryStore
	log     *slog.Logger
	engine  *gin.Engine
}

func NewServer(cfg *config.Dashboard, store *storage.Client, history HistoryStore, log *slog.Logger) *Server {
	s := &Server{cfg: cfg, store: store, history: history, log: log}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.observeRequests())
	r.Use(sessions.Sessions("rickbot_session", cookie.NewStore([]byte(s.cfg.SecretKey))))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/login", s.login)
	r.GET("/confirm_login", s.confirmLogin)
	r.GET("/logout", s.logout)

	api := r.Group("/api", requireUser)
	api.GET("/me", s.me)
	api.GET("/guilds", s.listGuilds)

	guild := api.Group("/guilds/:guild", requireGuildManager)
	guild.GET("/moderation/banned-words", s.getBannedWords)
	guild.PUT("/moderation/banned-words", s.putBannedWords)
	guild.GET("/moderation/roles", s.getRoleSet("Moderator", "roles"))
	guild.PUT("/moderation/roles", s.putRoleSet("Moderator", "roles"))
	guild.GET("/music/roles", s.getRoleSet("Music", "allowed_roles"))
	guild.PUT("/music/roles", s.putRoleSet("Music", "allowed_roles"))
	guild.GET("/plugins/:plugin/commands/:command", s.getFeatureFlag)
	guild.PUT("/plugins/:plugin/commands/:command", s.putFeatureFlag)
	guild.GET("/plugins/:plugin/cooldowns/:key", s.getCooldown)
	guild.PUT("/plugins/:plugin/cooldowns/:key", s.putCooldown)
	guild.GET("/playlist", s.getPlaylist)
	guild.GET("/history", s.getHistory)

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve runs the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) me(c *gin.Context) {
	user, _ := currentUser(c)
	c.JSON(http.StatusOK, user)
}

// listGuilds returns the guilds the session user manages.
func (s *Server) listGuilds(c *gin.Context) {
	raw, _ := sessions.Default(c).Get(sessionGuildsKey).(string)
	if raw == "" {
		c.JSON(http.StatusOK, []discordGuild{})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(raw))
}
