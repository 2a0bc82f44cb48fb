package instance

import (
	"context"

	"github.com/tunesync/api/data/model"
)

// Presences owns the ephemeral availability registries. All three maps are
// derived from live session state and are rebuilt from scratch on restart.
type Presences interface {
	SetOnline(u model.OnlineUserModel)
	ClearOnline(userID string)
	Online(userID string) (model.OnlineUserModel, bool)

	SetRecent(u model.RecentUserModel)
	ClearRecent(userID string)
	Recent(userID string) (model.RecentUserModel, bool)

	// LoadRoster replaces the platform-wide availability roster. Bot only.
	LoadRoster(users []model.BasicUserModel)
	SetAvailable(user model.BasicUserModel)
	RemoveAvailable(userID string)
	Roster() []model.BasicUserModel

	// AvailableUsers and RecentUsers are the read-model queries consumed by
	// the HTTP layer. A resolvable token widens visibility to friends.
	AvailableUsers(ctx context.Context, token string, activeOnly bool) ([]model.OnlineUserModel, error)
	RecentUsers(ctx context.Context, token string) ([]model.RecentUserModel, error)
}
