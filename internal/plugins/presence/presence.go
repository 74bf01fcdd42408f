// Package presence sets the bot's game status once the gateway reports ready.
package presence

import "log/slog"

// StatusSetter is the slice of the platform session that updates presence.
type StatusSetter interface {
	SetGame(name string) error
}

// Plugin advertises a configured game name.
type Plugin struct {
	Game string
	Log  *slog.Logger
}

func New(game string, log *slog.Logger) *Plugin {
	return &Plugin{Game: game, Log: log}
}

// OnReady pushes the configured game status. Failures are logged, never
// fatal; presence is cosmetic.
func (p *Plugin) OnReady(status StatusSetter) {
	if p.Game == "" {
		return
	}
	if err := status.SetGame(p.Game); err != nil {
		p.Log.Warn("failed to set game status", "game", p.Game, "error", err)
		return
	}
	p.Log.Info("presence set", "game", p.Game)
}
