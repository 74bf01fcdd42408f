package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Tonk1e/RickBot/internal/plugins/music"
)

const defaultHistoryLimit = 50

func (s *Server) getBannedWords(c *gin.Context) {
	st := s.store.Namespace("Moderator", c.Param("guild"))
	words, err := st.Get(c.Request.Context(), "banned_words")
	if err != nil {
		s.fail(c, "read banned words", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bannedWords": words})
}

func (s *Server) putBannedWords(c *gin.Context) {
	var body struct {
		BannedWords string `json:"bannedWords"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := s.store.Namespace("Moderator", c.Param("guild"))
	ctx := c.Request.Context()
	var err error
	if body.BannedWords == "" {
		err = st.Delete(ctx, "banned_words")
	} else {
		err = st.Set(ctx, "banned_words", body.BannedWords)
	}
	if err != nil {
		s.fail(c, "write banned words", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bannedWords": body.BannedWords})
}

// getRoleSet and putRoleSet serve the role-ID sets the command gates read:
// the moderator "roles" set and the music "allowed_roles" set.
func (s *Server) getRoleSet(plugin, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := s.store.Namespace(plugin, c.Param("guild"))
		roles, err := st.SMembers(c.Request.Context(), key)
		if err != nil {
			s.fail(c, "read role set", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"roles": roles})
	}
}

func (s *Server) putRoleSet(plugin, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Roles []string `json:"roles"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		st := s.store.Namespace(plugin, c.Param("guild"))
		ctx := c.Request.Context()
		if err := st.Delete(ctx, key); err != nil {
			s.fail(c, "clear role set", err)
			return
		}
		for _, role := range body.Roles {
			if role == "" {
				continue
			}
			if err := st.SAdd(ctx, key, role); err != nil {
				s.fail(c, "write role set", err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"roles": body.Roles})
	}
}

// Feature flags gate db_check commands: the command runs only while its key
// holds a value.
func (s *Server) getFeatureFlag(c *gin.Context) {
	st := s.store.Namespace(c.Param("plugin"), c.Param("guild"))
	v, err := st.Get(c.Request.Context(), c.Param("command"))
	if err != nil {
		s.fail(c, "read feature flag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": c.Param("command"), "enabled": v != ""})
}

func (s *Server) putFeatureFlag(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := s.store.Namespace(c.Param("plugin"), c.Param("guild"))
	ctx := c.Request.Context()
	var err error
	if body.Enabled {
		err = st.Set(ctx, c.Param("command"), "1")
	} else {
		err = st.Delete(ctx, c.Param("command"))
	}
	if err != nil {
		s.fail(c, "write feature flag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": c.Param("command"), "enabled": body.Enabled})
}

// Cooldowns are stored as whole seconds under a plugin-chosen key; 0 removes
// the override.
func (s *Server) getCooldown(c *gin.Context) {
	st := s.store.Namespace(c.Param("plugin"), c.Param("guild"))
	raw, err := st.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, "read cooldown", err)
		return
	}
	secs, _ := strconv.Atoi(raw)
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "seconds": secs})
}

func (s *Server) putCooldown(c *gin.Context) {
	var body struct {
		Seconds int `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must be a non-negative integer"})
		return
	}

	st := s.store.Namespace(c.Param("plugin"), c.Param("guild"))
	ctx := c.Request.Context()
	var err error
	if body.Seconds == 0 {
		err = st.Delete(ctx, c.Param("key"))
	} else {
		err = st.Set(ctx, c.Param("key"), strconv.Itoa(body.Seconds))
	}
	if err != nil {
		s.fail(c, "write cooldown", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "seconds": body.Seconds})
}

// getPlaylist reads the music queue straight from the keyspace; the dashboard
// process has no playback coordinator.
func (s *Server) getPlaylist(c *gin.Context) {
	st := s.store.Namespace("Music", c.Param("guild"))
	ctx := c.Request.Context()

	var nowPlaying *music.Track
	raw, err := st.Get(ctx, "now_playing")
	if err != nil {
		s.fail(c, "read now playing", err)
		return
	}
	if raw != "" {
		var t music.Track
		if err := json.Unmarshal([]byte(raw), &t); err == nil {
			nowPlaying = &t
		}
	}

	entries, err := st.LRange(ctx, "request_queue", 0, -1)
	if err != nil {
		s.fail(c, "read request queue", err)
		return
	}
	queue := make([]music.Track, 0, len(entries))
	for _, e := range entries {
		var t music.Track
		if err := json.Unmarshal([]byte(e), &t); err != nil {
			continue
		}
		queue = append(queue, t)
	}

	c.JSON(http.StatusOK, gin.H{"nowPlaying": nowPlaying, "queue": queue})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not configured"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := s.history.Recent(c.Request.Context(), c.Param("guild"), limit)
	if err != nil {
		s.fail(c, "read command history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	s.log.Error("dashboard request failed", "op", op, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
