package command

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/Tonk1e/RickBot/internal/storage"
)

// rolesKey is the guild's configured authorized-roles set. Entries may be
// role IDs, role names, or member display names.
const rolesKey = "roles"

// IsAuthorized reports whether a member counts as a guild moderator: they
// hold a manage-guild or administrator permission bit, or their display name,
// a role name, or a role ID appears in the guild's configured "roles" set.
//
// The set is read fresh on every call; nothing is cached beyond the check.
// Moderation handlers also run this against *target* members, e.g. a member
// who is themselves authorized cannot be muted.
func IsAuthorized(ctx context.Context, st *storage.Storage, a Author) (bool, error) {
	if a.HasPermission(discordgo.PermissionManageGuild | discordgo.PermissionAdministrator) {
		return true, nil
	}

	names, err := st.SMembers(ctx, rolesKey)
	if err != nil {
		return false, err
	}
	if len(names) == 0 {
		return false, nil
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	if _, ok := set[a.Name]; ok {
		return true, nil
	}
	for _, r := range a.Roles {
		if _, ok := set[r.Name]; ok {
			return true, nil
		}
		if _, ok := set[r.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}
