// Package command implements the chat command core: the command table, the
// dispatch pipeline with its authorization and cooldown gates, and the
// role-based authorization check shared with the moderation handlers.
package command

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/Tonk1e/RickBot/internal/storage"
)

// HandlerFunc is the body of a command, invoked only after every gate in the
// dispatch pipeline has passed.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Invocation carries everything a handler needs for one message: the message
// itself, the arguments captured by the matcher, the plugin's namespaced
// storage for the guild, and the outbound messenger.
type Invocation struct {
	Msg     *Message
	Args    []string
	Storage *storage.Storage
	Send    Messenger
}

// Command is one entry in the command table. Entries are plain data built at
// startup and immutable afterwards; dispatch is a scan over the table.
type Command struct {
	// Plugin scopes the command's storage namespace ("{Plugin}.{guild}:").
	Plugin string
	// Name identifies the command in cooldown keys and logs.
	Name string
	// Pattern is an anchored regular expression matched against message
	// content. Empty means the literal "^!{Name}".
	Pattern string

	Description string
	Usage       string

	// DBCheck gates the command on a per-guild feature flag: the command is a
	// silent no-op unless the key named by DBName (default Name) is present.
	DBCheck bool
	DBName  string

	// RequireOneOfRoles names a set of role IDs; the author must hold at
	// least one of them. Admins bypass the check.
	RequireOneOfRoles string
	// BannedRole names a key holding a single role ID that blocks the
	// command; BannedRoles names a set of them.
	BannedRole  string
	BannedRoles string

	// Cooldown is the per-user cooldown window. CooldownKey, when set,
	// overrides it with a duration (in seconds) read from the guild's store.
	Cooldown    time.Duration
	CooldownKey string
	// GlobalCooldown applies to all users of the guild at once.
	GlobalCooldown    time.Duration
	GlobalCooldownKey string

	Handler HandlerFunc

	re *regexp.Regexp
}

func (c *Command) featureKey() string {
	if c.DBName != "" {
		return c.DBName
	}
	return c.Name
}

func (c *Command) compile() error {
	p := c.Pattern
	if p == "" {
		p = "^!" + regexp.QuoteMeta(c.Name)
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return fmt.Errorf("command %s: bad pattern %q: %w", c.Name, p, err)
	}
	c.re = re
	return nil
}

// Registry holds the command table. Populated once at startup; dispatch
// scans it in registration order and the first match wins.
type Registry struct {
	commands []*Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register compiles and appends commands to the table.
func (r *Registry) Register(cmds ...*Command) error {
	for _, c := range cmds {
		if c.Handler == nil {
			return fmt.Errorf("command %s: nil handler", c.Name)
		}
		if err := c.compile(); err != nil {
			return err
		}
		r.commands = append(r.commands, c)
	}
	return nil
}

// All returns the table in registration order.
func (r *Registry) All() []*Command {
	return r.commands
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) *Command {
	for _, c := range r.commands {
		if c.Name == name {
			return c
		}
	}
	return nil
}
