package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonk1e/RickBot/internal/storage"
)

// fakeMessenger records sent and deleted messages.
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	deleted []string
	nextID  int
}

func (f *fakeMessenger) SendMessage(_ context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, content)
	return fmt.Sprintf("m%d", f.nextID), nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

type dispatchFixture struct {
	store *storage.Client
	mr    *miniredis.Miniredis
	reg   *Registry
	disp  *Dispatcher
	calls []*Invocation
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &dispatchFixture{
		store: storage.NewClient(rdb),
		mr:    mr,
		reg:   NewRegistry(),
	}
	f.disp = NewDispatcher(f.store, f.reg, &fakeMessenger{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *dispatchFixture) handler() HandlerFunc {
	return func(_ context.Context, inv *Invocation) error {
		f.calls = append(f.calls, inv)
		return nil
	}
}

func member(id string, roles ...Role) Author {
	return Author{ID: id, Name: "user" + id, Discriminator: "0001", Roles: roles}
}

func msgFrom(a Author, content string) *Message {
	return &Message{
		ID:        "msg1",
		ChannelID: "99",
		Content:   content,
		Author:    a,
		Guild:     Guild{ID: "42", Name: "testguild", OwnerID: "owner"},
		Timestamp: time.Now(),
	}
}

func TestDispatchNoMatchIsNoop(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "ping", Handler: f.handler(),
	}))

	err := f.disp.Dispatch(context.Background(), msgFrom(member("7"), "hello there"))
	require.NoError(t, err)
	assert.Empty(t, f.calls)
}

func TestDispatchDefaultPattern(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "ping", Handler: f.handler(),
	}))

	require.NoError(t, f.disp.Dispatch(context.Background(), msgFrom(member("7"), "!ping")))
	assert.Len(t, f.calls, 1)
}

func TestDispatchCapturesArgs(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "clear", Pattern: `^!clear ([0-9]+)$`, Handler: f.handler(),
	}))

	require.NoError(t, f.disp.Dispatch(context.Background(), msgFrom(member("7"), "!clear 25")))
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"25"}, f.calls[0].Args)
}

func TestDispatchFirstMatchWins(t *testing.T) {
	f := newDispatchFixture(t)
	var got string
	mk := func(name string) HandlerFunc {
		return func(context.Context, *Invocation) error {
			got = name
			return nil
		}
	}
	require.NoError(t, f.reg.Register(
		&Command{Plugin: "Moderator", Name: "clearuser", Pattern: `^!clear <@!?([0-9]+)>$`, Handler: mk("clearuser")},
		&Command{Plugin: "Moderator", Name: "clearnum", Pattern: `^!clear ([0-9]+)$`, Handler: mk("clearnum")},
	))

	require.NoError(t, f.disp.Dispatch(context.Background(), msgFrom(member("7"), "!clear <@123>")))
	assert.Equal(t, "clearuser", got)
}

func TestDispatchFeatureFlag(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "clear", Pattern: `^!clear ([0-9]+)$`,
		DBCheck: true, Handler: f.handler(),
	}))

	m := msgFrom(member("7"), "!clear 5")
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Empty(t, f.calls, "disabled feature must no-op silently")

	require.NoError(t, f.store.Namespace("Moderator", "42").Set(ctx, "clear", "1"))
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Len(t, f.calls, 1)
}

func TestDispatchFeatureFlagCustomName(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "unmute", DBCheck: true, DBName: "mute", Handler: f.handler(),
	}))

	require.NoError(t, f.store.Namespace("Moderator", "42").Set(ctx, "mute", "1"))
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("7"), "!unmute")))
	assert.Len(t, f.calls, 1)
}

func TestDispatchPerUserCooldown(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "roll", Cooldown: 30 * time.Second, Handler: f.handler(),
	}))

	m := msgFrom(member("7"), "!roll")
	require.NoError(t, f.disp.Dispatch(ctx, m))
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Len(t, f.calls, 1, "second invocation within the window is dropped")

	// Another user is unaffected.
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("8"), "!roll")))
	assert.Len(t, f.calls, 2)

	f.mr.FastForward(31 * time.Second)
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Len(t, f.calls, 3, "invocation after expiry succeeds")
}

func TestDispatchGlobalCooldown(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "roll", GlobalCooldown: time.Minute, Handler: f.handler(),
	}))

	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("7"), "!roll")))
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("8"), "!roll")))
	assert.Len(t, f.calls, 1, "global cooldown blocks everyone")

	f.mr.FastForward(61 * time.Second)
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("8"), "!roll")))
	assert.Len(t, f.calls, 2)
}

func TestDispatchDynamicCooldownFromStore(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "roll", CooldownKey: "roll_cooldown", Handler: f.handler(),
	}))

	// No key configured: no cooldown at all.
	m := msgFrom(member("7"), "!roll")
	require.NoError(t, f.disp.Dispatch(ctx, m))
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Len(t, f.calls, 2)

	require.NoError(t, f.store.Namespace("Moderator", "42").Set(ctx, "roll_cooldown", "20"))
	require.NoError(t, f.disp.Dispatch(ctx, m))
	require.NoError(t, f.disp.Dispatch(ctx, m))
	assert.Len(t, f.calls, 3, "configured duration now applies")

	ttl := f.mr.TTL("Moderator.42:cooldown:roll:7")
	assert.Equal(t, 20*time.Second, ttl)
}

func TestDispatchRequireOneOfRoles(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "slowmode", Pattern: `^!slowmode ([0-9]+)$`,
		RequireOneOfRoles: "roles", Cooldown: time.Minute, Handler: f.handler(),
	}))
	require.NoError(t, f.store.Namespace("Moderator", "42").SAdd(ctx, "roles", "modrole"))

	// No matching role: dropped, and crucially the cooldown is NOT consumed.
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("7"), "!slowmode 10")))
	assert.Empty(t, f.calls)
	assert.False(t, f.mr.Exists("Moderator.42:cooldown:slowmode:7"),
		"a role-blocked user must not consume their cooldown")

	// Holder of one configured role passes.
	mod := member("7", Role{ID: "modrole", Name: "Mods"})
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(mod, "!slowmode 10")))
	assert.Len(t, f.calls, 1)
}

func TestDispatchAdminBypassesRoleCheck(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "slowoff", RequireOneOfRoles: "roles", Handler: f.handler(),
	}))

	admin := member("7", Role{ID: "r1", Name: "Boss", Permissions: discordgo.PermissionAdministrator})
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(admin, "!slowoff")))
	assert.Len(t, f.calls, 1)

	// The guild owner bypasses too.
	owner := msgFrom(member("owner"), "!slowoff")
	require.NoError(t, f.disp.Dispatch(ctx, owner))
	assert.Len(t, f.calls, 2)
}

func TestDispatchBannedRole(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "roll", BannedRole: "banned_role", Handler: f.handler(),
	}))
	require.NoError(t, f.store.Namespace("Moderator", "42").Set(ctx, "banned_role", "jail"))

	jailed := member("7", Role{ID: "jail", Name: "Jail"})
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(jailed, "!roll")))
	assert.Empty(t, f.calls)

	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(member("8"), "!roll")))
	assert.Len(t, f.calls, 1)
}

func TestDispatchBannedRolesSet(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "roll", BannedRoles: "banned_roles", Handler: f.handler(),
	}))
	require.NoError(t, f.store.Namespace("Moderator", "42").SAdd(ctx, "banned_roles", "jail", "shadow"))

	shadowed := member("7", Role{ID: "shadow", Name: "Shadow"})
	require.NoError(t, f.disp.Dispatch(ctx, msgFrom(shadowed, "!roll")))
	assert.Empty(t, f.calls)
}

func TestDispatchHandlerErrorPropagates(t *testing.T) {
	f := newDispatchFixture(t)
	boom := fmt.Errorf("boom")
	require.NoError(t, f.reg.Register(&Command{
		Plugin: "Moderator", Name: "ping",
		Handler: func(context.Context, *Invocation) error { return boom },
	}))

	err := f.disp.Dispatch(context.Background(), msgFrom(member("7"), "!ping"))
	assert.ErrorIs(t, err, boom)
}
