package moderator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Tonk1e/RickBot/internal/command"
)

// deletionWindow is how far back the platform allows message deletion.
// Anything older stays put, and the predicate excludes it so the reported
// count reflects messages actually deleted, not merely attempted.
const deletionWindow = 14 * 24 * time.Hour

const defaultUserPurgeLimit = 100

// purge deletes up to limit recent messages matching keep and returns the
// number actually deleted. Deletions are paced by the plugin's limiter.
func (p *Plugin) purge(ctx context.Context, channelID string, limit int, keep func(command.Message) bool) (int, error) {
	msgs, err := p.History.Messages(ctx, channelID, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch channel history: %w", err)
	}

	deleted := 0
	for _, m := range msgs {
		if !keep(m) {
			continue
		}
		if err := p.DeleteLimiter.Wait(ctx); err != nil {
			return deleted, err
		}
		if err := p.Send.DeleteMessage(ctx, channelID, m.ID); err != nil {
			p.Log.Warn("failed to delete message", "channel", channelID, "message", m.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// clearNum handles "!clear N": purge the last N messages within the deletion
// window. The invoking message is included in the sweep and excluded from
// the reported count.
func (p *Plugin) clearNum(ctx context.Context, inv *command.Invocation) error {
	n, err := strconv.Atoi(inv.Args[0])
	if err != nil || n < 1 {
		return nil
	}
	if n > 1000 {
		n = 1000
	}

	cutoff := time.Now().Add(-deletionWindow)
	deleted, err := p.purge(ctx, inv.Msg.ChannelID, n+1, func(m command.Message) bool {
		return m.Timestamp.After(cutoff)
	})
	if err != nil {
		return err
	}

	return p.confirmPurge(ctx, inv, deleted-1)
}

// clearUser handles "!clear @user": purge the mentioned user's recent
// messages (and the invoking message itself) within the deletion window.
func (p *Plugin) clearUser(ctx context.Context, inv *command.Invocation) error {
	if len(inv.Msg.Mentions) == 0 {
		return nil
	}
	targetID := inv.Msg.Mentions[0]

	cutoff := time.Now().Add(-deletionWindow)
	deleted, err := p.purge(ctx, inv.Msg.ChannelID, defaultUserPurgeLimit, func(m command.Message) bool {
		if !m.Timestamp.After(cutoff) {
			return false
		}
		return m.Author.ID == targetID || m.ID == inv.Msg.ID
	})
	if err != nil {
		return err
	}

	return p.confirmPurge(ctx, inv, deleted-1)
}

// confirmPurge posts the deleted-count confirmation and deletes it again
// after ConfirmDelay. count excludes the invoking message.
func (p *Plugin) confirmPurge(ctx context.Context, inv *command.Invocation, count int) error {
	if count < 0 {
		count = 0
	}

	var resp string
	if count == 0 {
		resp = "Deleted `no messages` :unamused:\n(I can't delete messages " +
			"that are older than 2 weeks due to discord limitations!)"
	} else {
		plural := "s"
		if count < 2 {
			plural = ""
		}
		resp = fmt.Sprintf("Deleted `%d message%s` :thumbsup:", count, plural)
	}

	confirmID, err := inv.Send.SendMessage(ctx, inv.Msg.ChannelID, resp)
	if err != nil {
		return err
	}
	p.deleteLater(inv.Msg.ChannelID, confirmID, p.ConfirmDelay)
	return nil
}
