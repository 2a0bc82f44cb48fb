package presences

import (
	"context"

	"github.com/tunesync/api/data/model"
	"go.uber.org/zap"
)

// AvailableUsers returns every online user broadcasting to Everyone. When the
// token resolves to a known account, online users broadcasting to Friends are
// added if they appear in that account's friend list. activeOnly drops
// entries with no current track.
func (i *inst) AvailableUsers(ctx context.Context, token string, activeOnly bool) ([]model.OnlineUserModel, error) {
	i.mu.RLock()

	public := make([]model.OnlineUserModel, 0, len(i.online))
	restricted := make([]model.OnlineUserModel, 0)

	for _, u := range i.online {
		switch u.SocialStatus {
		case model.SocialStatusEveryone:
			public = append(public, u)
		case model.SocialStatusFriends:
			restricted = append(restricted, u)
		}
	}
	i.mu.RUnlock()

	if len(restricted) > 0 && token != "" {
		friends := i.friendSet(ctx, token)

		for _, u := range restricted {
			if _, ok := friends[u.UserID]; ok {
				public = append(public, u)
			}
		}
	}

	if activeOnly {
		active := public[:0]

		for _, u := range public {
			if u.ListeningTo != nil {
				active = append(active, u)
			}
		}

		public = active
	}

	return public, nil
}

// RecentUsers applies the same visibility rules to the recent map.
func (i *inst) RecentUsers(ctx context.Context, token string) ([]model.RecentUserModel, error) {
	i.mu.RLock()

	public := make([]model.RecentUserModel, 0, len(i.recent))
	restricted := make([]model.RecentUserModel, 0)

	for _, u := range i.recent {
		switch u.SocialStatus {
		case model.SocialStatusEveryone:
			public = append(public, u)
		case model.SocialStatusFriends:
			restricted = append(restricted, u)
		}
	}
	i.mu.RUnlock()

	if len(restricted) > 0 && token != "" {
		friends := i.friendSet(ctx, token)

		for _, u := range restricted {
			if _, ok := friends[u.UserID]; ok {
				public = append(public, u)
			}
		}
	}

	return public, nil
}

// friendSet resolves the token to an account and fetches its friend ids. Any
// failure narrows visibility back to public entries only.
func (i *inst) friendSet(ctx context.Context, token string) map[string]struct{} {
	user, err := i.users.GetByToken(ctx, token)
	if err != nil {
		return nil
	}

	friends, err := i.social.Friends(ctx, user.UserID)
	if err != nil {
		zap.S().Warnw("presences, friend lookup failed",
			"user_id", user.UserID,
			"error", err,
		)

		return nil
	}

	set := make(map[string]struct{}, len(friends))
	for _, f := range friends {
		set[f.ID] = struct{}{}
	}

	return set
}
