package instance

import (
	"context"

	"github.com/tunesync/api/data/model"
)

// Users is the user document store. Live playback state is never written
// here; only identity, credentials and listening history.
type Users interface {
	Get(ctx context.Context, userID string) (model.UserModel, error)
	GetByToken(ctx context.Context, token string) (model.UserModel, error)
	Save(ctx context.Context, user model.UserModel) error
	Update(ctx context.Context, user model.UserModel) error

	// PushRecentlyPlayed moves track to the head of the user's recently
	// played list and returns the updated list.
	PushRecentlyPlayed(ctx context.Context, userID string, track model.TrackModel) ([]model.TrackModel, error)
}
