package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/svc/users"
)

// ExchangeCode performs the OAuth authorization-code exchange, fetches the
// platform user object and upserts the account with a freshly minted opaque
// access token.
func (i *inst) ExchangeCode(ctx context.Context, code string) (model.UserModel, error) {
	if code == "" {
		return model.UserModel{}, errors.New("missing authorization code")
	}

	grant, err := i.oauth.Exchange(ctx, code)
	if err != nil {
		return model.UserModel{}, err
	}

	session, err := i.discordFactory(grant.AccessToken)
	if err != nil {
		return model.UserModel{}, err
	}

	platformUser, err := session.User("@me")
	if err != nil {
		return model.UserModel{}, err
	}

	user := model.UserModel{
		UserID:        platformUser.ID,
		Username:      platformUser.Username,
		Discriminator: platformUser.Discriminator,
		Avatar:        avatarURL(platformUser.ID, platformUser.Avatar),
		AccessToken:   users.GenerateToken(),

		Discord:   grant.AccessToken,
		Refresh:   grant.RefreshToken,
		TokenType: grant.TokenType,
		ExpiresAt: grant.Expiry.UnixMilli(),
	}

	// Existing accounts keep their playlists and history; only identity and
	// credentials are rewritten by a new login.
	if existing, err := i.users.Get(ctx, user.UserID); err == nil {
		user.RecentlyPlayed = existing.RecentlyPlayed
		user.LikedSongs = existing.LikedSongs
		user.Playlists = existing.Playlists
		user.PresenceToken = existing.PresenceToken
	}

	if err = i.users.Save(ctx, user); err != nil {
		return model.UserModel{}, err
	}

	return user, nil
}

func avatarURL(id, hash string) string {
	if hash == "" {
		return ""
	}

	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", id, hash)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("bad response from platform: %d - %s", resp.StatusCode, body)
}
