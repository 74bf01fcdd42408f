// Package music implements the per-guild playback coordinator and the music
// commands. The request queue lives in the guild's key-value namespace so it
// survives restarts; only the active player and its lock are in-process state.
package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Tonk1e/RickBot/internal/storage"
)

// PluginName scopes the music keys ("Music.{guild}:").
const PluginName = "Music"

const (
	keyQueue      = "request_queue"
	keyNowPlaying = "now_playing"
)

// ErrEmptyQueue is returned by PlayNext when there is nothing to play.
// It is an expected outcome, not an operational error.
var ErrEmptyQueue = errors.New("request queue is empty")

// Track is one queued request.
type Track struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Thumbnail string    `json:"thumbnail"`
	AddedBy   Requester `json:"addedBy"`
}

// Requester identifies who queued a track.
type Requester struct {
	Name          string `json:"name"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}

// Player is the platform's active audio player for one track. Stop must
// return promptly; the completion callback passed to CreatePlayer fires
// exactly once when playback ends for any reason, including Stop.
type Player interface {
	Start() error
	Stop()
	SetVolume(v float64)
}

// PlayerFactory constructs platform players. The completion callback must be
// invoked from its own goroutine, never inline from Stop.
type PlayerFactory interface {
	CreatePlayer(ctx context.Context, guildID string, track Track, onComplete func(err error)) (Player, error)
}

// Coordinator owns at most one active player per guild and totally orders
// track transitions through a per-guild lock.
type Coordinator struct {
	mu     sync.Mutex
	guilds map[string]*guildState

	store   *storage.Client
	factory PlayerFactory
	volume  float64
	log     *slog.Logger
}

// guildState is the only in-process mutable state in the music core. The
// lock is scoped to the swap inside PlayNext, not to playback itself, so a
// later completion continuation can acquire it on its own.
type guildState struct {
	mu           sync.Mutex
	current      Player
	suppressNext bool
}

// NewCoordinator wires a coordinator. volume is applied to every new player.
func NewCoordinator(store *storage.Client, factory PlayerFactory, volume float64, log *slog.Logger) *Coordinator {
	return &Coordinator{
		guilds:  make(map[string]*guildState),
		store:   store,
		factory: factory,
		volume:  volume,
		log:     log,
	}
}

// guild returns the state record for a guild, creating it lazily.
func (c *Coordinator) guild(guildID string) *guildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	gs, ok := c.guilds[guildID]
	if !ok {
		gs = &guildState{}
		c.guilds[guildID] = gs
	}
	return gs
}

func (c *Coordinator) namespace(guildID string) *storage.Storage {
	return c.store.Namespace(PluginName, guildID)
}

// Enqueue appends a track to the guild's durable queue. A single list push,
// no lock needed.
func (c *Coordinator) Enqueue(ctx context.Context, guildID string, t Track) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode track: %w", err)
	}
	return c.namespace(guildID).RPush(ctx, keyQueue, string(raw))
}

// Queue returns up to n queued tracks without consuming them.
func (c *Coordinator) Queue(ctx context.Context, guildID string, n int64) ([]Track, error) {
	raws, err := c.namespace(guildID).LRange(ctx, keyQueue, 0, n-1)
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(raws))
	for _, raw := range raws {
		var t Track
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			c.log.Warn("skipping malformed queue entry", "guild", guildID, "error", err)
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// NowPlaying returns the current track, or nil when the guild is idle.
func (c *Coordinator) NowPlaying(ctx context.Context, guildID string) (*Track, error) {
	raw, err := c.namespace(guildID).Get(ctx, keyNowPlaying)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var t Track
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode now playing: %w", err)
	}
	return &t, nil
}

// PlayNext pops the head of the queue and swaps it in as the current track.
// The guild lock is held for the swap only: pop, stop the old player with
// auto-advance suppressed, start the new one. Two concurrent callers (a
// manual skip racing a natural completion) serialize here; they never both
// run the swap at once. Any failure constructing or starting the player
// leaves the guild idle with the lock released.
func (c *Coordinator) PlayNext(ctx context.Context, guildID string) error {
	gs := c.guild(guildID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	st := c.namespace(guildID)
	raw, err := st.LPop(ctx, keyQueue)
	if err != nil {
		return err
	}
	if raw == "" {
		return ErrEmptyQueue
	}
	var track Track
	if err := json.Unmarshal([]byte(raw), &track); err != nil {
		return fmt.Errorf("decode queued track: %w", err)
	}

	if gs.current != nil {
		// The stop below will fire the old player's completion callback;
		// the flag makes that callback a no-op instead of a second advance.
		gs.suppressNext = true
		gs.current.Stop()
		gs.current = nil
	}

	if err := st.Set(ctx, keyNowPlaying, raw); err != nil {
		c.log.Warn("failed to record now playing", "guild", guildID, "error", err)
	}

	player, err := c.factory.CreatePlayer(ctx, guildID, track, func(perr error) {
		go c.trackDone(guildID, perr)
	})
	if err != nil {
		_ = st.Delete(ctx, keyNowPlaying)
		return fmt.Errorf("create player: %w", err)
	}
	player.SetVolume(c.volume)
	if err := player.Start(); err != nil {
		_ = st.Delete(ctx, keyNowPlaying)
		return fmt.Errorf("start player: %w", err)
	}

	gs.current = player
	c.log.Info("now playing", "guild", guildID, "title", track.Title, "url", track.URL)
	return nil
}

// Stop halts the active player without advancing to the next track.
// Returns false when nothing was playing.
func (c *Coordinator) Stop(ctx context.Context, guildID string) bool {
	gs := c.guild(guildID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.current == nil {
		return false
	}
	gs.suppressNext = true
	gs.current.Stop()
	gs.current = nil

	if err := c.namespace(guildID).Delete(ctx, keyNowPlaying); err != nil {
		c.log.Warn("failed to clear now playing", "guild", guildID, "error", err)
	}
	return true
}

// trackDone is the completion continuation. It runs on its own goroutine and
// re-acquires the guild lock itself; it is never called with the lock of the
// originating PlayNext still held. A suppressed completion (one caused by
// Stop or by a swap) consumes the flag and does nothing.
func (c *Coordinator) trackDone(guildID string, perr error) {
	if perr != nil {
		c.log.Error("player finished with error", "guild", guildID, "error", perr)
	}

	gs := c.guild(guildID)
	gs.mu.Lock()
	if gs.suppressNext {
		gs.suppressNext = false
		gs.mu.Unlock()
		return
	}
	gs.current = nil
	gs.mu.Unlock()

	ctx := context.Background()
	if err := c.PlayNext(ctx, guildID); err != nil {
		if errors.Is(err, ErrEmptyQueue) {
			if derr := c.namespace(guildID).Delete(ctx, keyNowPlaying); derr != nil {
				c.log.Warn("failed to clear now playing", "guild", guildID, "error", derr)
			}
			return
		}
		c.log.Error("auto-advance failed", "guild", guildID, "error", err)
	}
}
