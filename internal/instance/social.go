package instance

import (
	"context"

	"github.com/tunesync/api/data/model"
)

// Social is the façade over the external social platform: relationships,
// OAuth credential exchange and the rich-presence bridge.
type Social interface {
	Friends(ctx context.Context, userID string) ([]model.FriendModel, error)

	// UpdatePresence posts (or retracts, when presence is nil) the user's
	// rich presence. Best effort: failures are logged and dropped, a rate
	// limited call is retried once after the advertised interval.
	UpdatePresence(ctx context.Context, userID string, presence *model.PresenceModel)

	// ExchangeCode turns an OAuth authorization code into a stored user
	// record carrying a fresh opaque access token.
	ExchangeCode(ctx context.Context, code string) (model.UserModel, error)
}
