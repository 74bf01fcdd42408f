package command

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Tonk1e/RickBot/internal/storage"
)

// InvocationRecord is the durable trace of one successful dispatch.
type InvocationRecord struct {
	GuildID   string
	GuildName string
	ChannelID string
	UserID    string
	Username  string
	Command   string
	Content   string
	At        time.Time
}

// Recorder persists invocation records. Recording is best-effort; a failed
// write is logged and never blocks the command.
type Recorder interface {
	RecordInvocation(ctx context.Context, rec InvocationRecord) error
}

// Dispatcher matches incoming messages against the command table and runs
// the gate pipeline before invoking a handler.
type Dispatcher struct {
	store    *storage.Client
	registry *Registry
	send     Messenger
	recorder Recorder // may be nil
	log      *slog.Logger
}

// NewDispatcher wires a dispatcher. recorder may be nil.
func NewDispatcher(store *storage.Client, registry *Registry, send Messenger, recorder Recorder, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		send:     send,
		recorder: recorder,
		log:      log,
	}
}

// Dispatch finds the first command whose matcher matches the message content
// and runs it through the pipeline. A message matching no command is a
// silent no-op, not an error. Handler errors propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) error {
	for _, c := range d.registry.All() {
		m := c.re.FindStringSubmatch(msg.Content)
		if m == nil {
			continue
		}
		return d.run(ctx, c, msg, m[1:])
	}
	return nil
}

// run executes the fixed, short-circuiting gate pipeline:
// feature flag, global cooldown, per-user cooldown, required roles, banned
// roles, invocation log, cooldown writes, handler. Any gate that fails skips
// everything after it, so a user blocked by a role check does not consume a
// cooldown. The cooldown check and the later write are deliberately not
// atomic; see the storage package notes.
func (d *Dispatcher) run(ctx context.Context, c *Command, msg *Message, args []string) error {
	st := d.store.Namespace(c.Plugin, msg.Guild.ID)

	if c.DBCheck {
		v, err := st.Get(ctx, c.featureKey())
		if err != nil {
			return err
		}
		if v == "" {
			return nil // feature disabled for this guild
		}
	}

	userCooldown, err := d.resolveDuration(ctx, st, c.Cooldown, c.CooldownKey)
	if err != nil {
		return err
	}
	globalCooldown, err := d.resolveDuration(ctx, st, c.GlobalCooldown, c.GlobalCooldownKey)
	if err != nil {
		return err
	}

	globalKey := "cooldown:" + c.Name
	userKey := globalKey + ":" + msg.Author.ID

	if globalCooldown > 0 {
		active, err := st.Exists(ctx, globalKey)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
	}
	if userCooldown > 0 {
		active, err := st.Exists(ctx, userKey)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
	}

	isAdmin := msg.Author.IsAdmin(msg.Guild)

	if c.RequireOneOfRoles != "" && !isAdmin {
		roleIDs, err := st.SMembers(ctx, c.RequireOneOfRoles)
		if err != nil {
			return err
		}
		authorized := false
		for _, id := range roleIDs {
			if msg.Author.HasRole(id) {
				authorized = true
				break
			}
		}
		if !authorized {
			return nil
		}
	}

	if c.BannedRole != "" {
		roleID, err := st.Get(ctx, c.BannedRole)
		if err != nil {
			return err
		}
		if roleID != "" && msg.Author.HasRole(roleID) {
			return nil
		}
	}
	if c.BannedRoles != "" {
		roleIDs, err := st.SMembers(ctx, c.BannedRoles)
		if err != nil {
			return err
		}
		for _, id := range roleIDs {
			if msg.Author.HasRole(id) {
				return nil
			}
		}
	}

	d.log.Info("command invoked",
		"command", c.Name,
		"user", msg.Author.Tag(),
		"guild", msg.Guild.Name,
		"content", msg.Content,
	)
	if d.recorder != nil {
		rec := InvocationRecord{
			GuildID:   msg.Guild.ID,
			GuildName: msg.Guild.Name,
			ChannelID: msg.ChannelID,
			UserID:    msg.Author.ID,
			Username:  msg.Author.Name,
			Command:   c.Name,
			Content:   msg.Content,
			At:        time.Now(),
		}
		if err := d.recorder.RecordInvocation(ctx, rec); err != nil {
			d.log.Warn("failed to record invocation", "command", c.Name, "error", err)
		}
	}

	if globalCooldown > 0 {
		if err := st.SetTTL(ctx, globalKey, "1", globalCooldown); err != nil {
			return err
		}
	}
	if userCooldown > 0 {
		if err := st.SetTTL(ctx, userKey, "1", userCooldown); err != nil {
			return err
		}
	}

	inv := &Invocation{
		Msg:     msg,
		Args:    args,
		Storage: st,
		Send:    d.send,
	}
	return c.Handler(ctx, inv)
}

// resolveDuration returns the fixed duration unless a store key overrides
// it. Dynamic values are stored as whole seconds; a missing or malformed
// value means no cooldown.
func (d *Dispatcher) resolveDuration(ctx context.Context, st *storage.Storage, fixed time.Duration, key string) (time.Duration, error) {
	if key == "" {
		return fixed, nil
	}
	raw, err := st.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, nil
	}
	return time.Duration(secs) * time.Second, nil
}
