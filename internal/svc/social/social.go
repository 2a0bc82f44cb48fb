package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	cache "github.com/patrickmn/go-cache"
	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/configure"
	"github.com/tunesync/api/internal/instance"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultAPI = "https://discord.com/api/v10"

	friendsCacheTTL = time.Minute * 5
)

type Options struct {
	Config     configure.PlatformConfig
	Users      instance.Users
	Prometheus instance.Prometheus
}

func New(opt Options) instance.Social {
	api := opt.Config.Discord.API
	if api == "" {
		api = defaultAPI
	}

	return &inst{
		api:   api,
		users: opt.Users,
		prom:  opt.Prometheus,
		oauth: &oauth2.Config{
			ClientID:     opt.Config.Discord.ClientID,
			ClientSecret: opt.Config.Discord.ClientSecret,
			RedirectURL:  opt.Config.Discord.RedirectURI,
			Scopes:       []string{"identify", "relationships.read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   api + "/oauth2/authorize",
				TokenURL:  api + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: time.Second * 10},
		friends:    cache.New(friendsCacheTTL, friendsCacheTTL*2),

		retryGen:    map[string]uint64{},
		retryTimers: map[string]*time.Timer{},

		discordFactory: func(token string) (platformProfile, error) {
			session, err := discordgo.New("Bearer " + token)
			if err != nil {
				return nil, err
			}

			return discordSession{session}, nil
		},
	}
}

// platformProfile is the slice of the platform SDK needed after an OAuth
// grant: fetching the authorizing user's profile.
type platformProfile interface {
	User(userID string) (*discordgo.User, error)
}

type discordSession struct {
	session *discordgo.Session
}

func (d discordSession) User(userID string) (*discordgo.User, error) {
	return d.session.User(userID)
}

type inst struct {
	api   string
	users instance.Users
	prom  instance.Prometheus
	oauth *oauth2.Config

	httpClient *http.Client
	friends    *cache.Cache

	// Pending rate-limit retries, keyed by user id. The generation counter
	// invalidates a scheduled retry once a newer presence update supersedes
	// it.
	retryMu     sync.Mutex
	retryGen    map[string]uint64
	retryTimers map[string]*time.Timer

	discordFactory func(token string) (platformProfile, error)
}

// Friends returns the user's relationships on the platform, cached for a few
// minutes to keep the availability queries cheap.
func (i *inst) Friends(ctx context.Context, userID string) ([]model.FriendModel, error) {
	if cached, ok := i.friends.Get(userID); ok {
		return cached.([]model.FriendModel), nil
	}

	user, err := i.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user, err = i.renew(ctx, user); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.api+"/users/@me/relationships", nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", authorization(user))

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("bad response from platform: %d - %s", resp.StatusCode, body)
	}

	var friends []model.FriendModel
	if err = json.NewDecoder(resp.Body).Decode(&friends); err != nil {
		return nil, err
	}

	i.friends.SetDefault(userID, friends)

	return friends, nil
}

// renew refreshes the user's platform credentials if they have expired,
// persisting the rotated tokens. The updated user is returned.
func (i *inst) renew(ctx context.Context, user model.UserModel) (model.UserModel, error) {
	if user.ExpiresAt > time.Now().UnixMilli() {
		return user, nil
	}

	if user.Refresh == "" {
		return user, fmt.Errorf("credentials expired and no refresh token held")
	}

	src := i.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: user.Refresh,
	})

	token, err := src.Token()
	if err != nil {
		return user, err
	}

	user.Discord = token.AccessToken
	user.TokenType = token.TokenType
	user.ExpiresAt = token.Expiry.UnixMilli()

	if token.RefreshToken != "" {
		user.Refresh = token.RefreshToken
	}

	if err = i.users.Update(ctx, user); err != nil {
		zap.S().Errorw("social, failed to persist renewed credentials",
			"user_id", user.UserID,
			"error", err,
		)
	}

	return user, nil
}

func authorization(user model.UserModel) string {
	typ := user.TokenType
	if typ == "" {
		typ = "Bearer"
	}

	return typ + " " + user.Discord
}
