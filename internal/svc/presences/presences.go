package presences

import (
	"sync"

	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/instance"
)

// The registry keeps three ephemeral maps:
//
//	online    users with an active session currently holding a track
//	recent    users whose last playing session disconnected
//	available the platform-wide roster pushed by the bot
//
// None of it is persisted; everything is rebuilt from live session state.
type Options struct {
	Users  instance.Users
	Social instance.Social
}

func New(opt Options) instance.Presences {
	return &inst{
		users:     opt.Users,
		social:    opt.Social,
		online:    map[string]model.OnlineUserModel{},
		recent:    map[string]model.RecentUserModel{},
		available: map[string]model.BasicUserModel{},
	}
}

type inst struct {
	users  instance.Users
	social instance.Social

	mu        sync.RWMutex
	online    map[string]model.OnlineUserModel
	recent    map[string]model.RecentUserModel
	available map[string]model.BasicUserModel
}

func (i *inst) SetOnline(u model.OnlineUserModel) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.online[u.UserID] = u
}

func (i *inst) ClearOnline(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.online, userID)
}

func (i *inst) Online(userID string) (model.OnlineUserModel, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	u, ok := i.online[userID]

	return u, ok
}

func (i *inst) SetRecent(u model.RecentUserModel) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.recent[u.UserID] = u
}

func (i *inst) ClearRecent(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.recent, userID)
}

func (i *inst) Recent(userID string) (model.RecentUserModel, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	u, ok := i.recent[userID]

	return u, ok
}

func (i *inst) LoadRoster(users []model.BasicUserModel) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.available = make(map[string]model.BasicUserModel, len(users))
	for _, u := range users {
		i.available[u.UserID] = u
	}
}

func (i *inst) SetAvailable(user model.BasicUserModel) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.available[user.UserID] = user
}

func (i *inst) RemoveAvailable(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.available, userID)
}

func (i *inst) Roster() []model.BasicUserModel {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]model.BasicUserModel, 0, len(i.available))
	for _, u := range i.available {
		result = append(result, u)
	}

	return result
}
