package moderator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Tonk1e/RickBot/internal/command"
)

// Slowmode key layout, all within the Moderator namespace:
//
//	slowmode:channels                  set of slowed channel IDs
//	slowmode:{chan}:interval           seconds between messages
//	slowmode:{chan}:slowed             set of users seen while slowed
//	slowmode:{chan}:slowed:{user}      TTL marker: present = already spoke
//	                                   this window, next message is deleted
const (
	keySlowChannels = "slowmode:channels"
	keyBannedWords  = "banned_words"
)

func keyInterval(channelID string) string {
	return fmt.Sprintf("slowmode:%s:interval", channelID)
}

func keySlowedSet(channelID string) string {
	return fmt.Sprintf("slowmode:%s:slowed", channelID)
}

func keySlowedUser(channelID, userID string) string {
	return fmt.Sprintf("slowmode:%s:slowed:%s", channelID, userID)
}

// slowmode handles "!slowmode N": add the channel to the slowed set and
// record its interval.
func (p *Plugin) slowmode(ctx context.Context, inv *command.Invocation) error {
	secs, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return nil
	}
	if secs == 0 {
		_, serr := inv.Send.SendMessage(ctx, inv.Msg.ChannelID,
			"The slowmode timer cannot be set to 0 :joy:")
		return serr
	}

	channelID := inv.Msg.ChannelID
	if err := inv.Storage.SAdd(ctx, keySlowChannels, channelID); err != nil {
		return err
	}
	if err := inv.Storage.Set(ctx, keyInterval(channelID), strconv.Itoa(secs)); err != nil {
		return err
	}

	resp := fmt.Sprintf("<#%s> is now in :snail: slewwwww mode :joy:! (%d seconds)", channelID, secs)
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

// slowoff disables slowmode for the channel and clears every outstanding
// per-user marker, so no stale timer keeps deleting messages afterwards.
func (p *Plugin) slowoff(ctx context.Context, inv *command.Invocation) error {
	channelID := inv.Msg.ChannelID

	slowed, err := inv.Storage.SIsMember(ctx, keySlowChannels, channelID)
	if err != nil {
		return err
	}
	if !slowed {
		return nil
	}

	if err := inv.Storage.SRem(ctx, keySlowChannels, channelID); err != nil {
		return err
	}

	users, err := inv.Storage.SMembers(ctx, keySlowedSet(channelID))
	if err != nil {
		return err
	}
	for _, userID := range users {
		if err := inv.Storage.Delete(ctx, keySlowedUser(channelID, userID)); err != nil {
			return err
		}
	}
	if err := inv.Storage.Delete(ctx, keySlowedSet(channelID), keyInterval(channelID)); err != nil {
		return err
	}

	resp := fmt.Sprintf("<#%s> is no longer in :snail: slewwwww mode :joy:!", channelID)
	_, err = inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	return err
}

// OnMessage is the passive hook run for every incoming message: banned-word
// scan first, then the slowmode gate.
func (p *Plugin) OnMessage(ctx context.Context, msg *command.Message) error {
	if err := p.scanBannedWords(ctx, msg); err != nil {
		return err
	}
	return p.slowCheck(ctx, msg)
}

// OnMessageEdit re-scans edited messages, so edits cannot sneak a banned
// word past the filter.
func (p *Plugin) OnMessageEdit(ctx context.Context, msg *command.Message) error {
	return p.scanBannedWords(ctx, msg)
}

// slowCheck enforces slowmode for one message. First message in a window
// passes and writes the TTL marker; any message while the marker is present
// is deleted without refreshing the marker. Authorized users are exempt.
func (p *Plugin) slowCheck(ctx context.Context, msg *command.Message) error {
	st := p.Store.Namespace(PluginName, msg.Guild.ID)

	authorized, err := command.IsAuthorized(ctx, st, msg.Author)
	if err != nil {
		return err
	}
	if authorized {
		return nil
	}

	slowed, err := st.SIsMember(ctx, keySlowChannels, msg.ChannelID)
	if err != nil {
		return err
	}
	if !slowed {
		return nil
	}

	raw, err := st.Get(ctx, keyInterval(msg.ChannelID))
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return nil
	}

	// Track the user so slowoff can find and clear their marker.
	if err := st.SAdd(ctx, keySlowedSet(msg.ChannelID), msg.Author.ID); err != nil {
		return err
	}

	marker := keySlowedUser(msg.ChannelID, msg.Author.ID)
	present, err := st.Exists(ctx, marker)
	if err != nil {
		return err
	}
	if present {
		return p.Send.DeleteMessage(ctx, msg.ChannelID, msg.ID)
	}

	return st.SetTTL(ctx, marker, "1", time.Duration(secs)*time.Second)
}

// scanBannedWords deletes a message containing any configured banned word
// and posts a warning that removes itself shortly after. The match is
// case-insensitive and whole-word: "class" does not trip on "as".
func (p *Plugin) scanBannedWords(ctx context.Context, msg *command.Message) error {
	st := p.Store.Namespace(PluginName, msg.Guild.ID)

	raw, err := st.Get(ctx, keyBannedWords)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	banned := make(map[string]struct{})
	for _, w := range strings.Split(raw, ",") {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			banned[w] = struct{}{}
		}
	}
	if len(banned) == 0 {
		return nil
	}

	for _, word := range strings.Fields(msg.Content) {
		if _, hit := banned[strings.ToLower(word)]; !hit {
			continue
		}

		if err := p.Send.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
			p.Log.Warn("failed to delete message with banned word",
				"channel", msg.ChannelID, "message", msg.ID, "error", err)
		}
		warning := fmt.Sprintf("<@%s>, **WATCH YOUR LANGUAGE!!!** :rage:", msg.Author.ID)
		warnID, err := p.Send.SendMessage(ctx, msg.ChannelID, warning)
		if err != nil {
			return err
		}
		p.deleteLater(msg.ChannelID, warnID, p.WarnDelay)
		return nil
	}
	return nil
}
