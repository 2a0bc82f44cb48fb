package gateway

import (
	"sync"
	"time"

	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/global"
	"go.uber.org/zap"
)

// Coordinator owns every live registry of the session layer: the connection
// table, the user index and the listen-along graph. All mutation happens
// under one lock, so handler logic behaves like a single event loop;
// goroutines resuming from external calls must re-validate their session
// through the coordinator before touching anything.
type Coordinator struct {
	gCtx global.Context

	mu       sync.Mutex
	sessions map[string]*Session
	users    map[string][]*Session

	// botID is the session id of the active bot connection, empty when the
	// bot slot is free. At most one bot session exists process-wide.
	botID string
}

func NewCoordinator(gCtx global.Context) *Coordinator {
	return &Coordinator{
		gCtx:     gCtx,
		sessions: map[string]*Session{},
		users:    map[string][]*Session{},
	}
}

// Accept registers a new connection and sends the welcome frame. The caller
// owns the read loop and must call OnClose when it exits.
func (c *Coordinator) Accept(conn Conn) *Session {
	s := newSession(conn)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	if prom := c.gCtx.Inst().Prometheus; prom != nil {
		prom.GatewayConnections().Inc()
	}

	s.send(newWelcomeFrame())

	zap.S().Debugw("gateway, new connection",
		"session_id", s.id,
	)

	return s
}

// Session looks up a live session by id.
func (c *Coordinator) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]

	return s, ok
}

// SessionsOf returns the user's sessions in connection order.
func (c *Coordinator) SessionsOf(userID string) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*Session(nil), c.users[userID]...)
}

// fail sends one error frame and closes the connection. Protocol violations
// are always fatal; there is no soft-continue.
func (c *Coordinator) fail(s *Session, code int, message string) {
	zap.S().Debugw("gateway, protocol error",
		"session_id", s.id,
		"code", code,
		"message", message,
	)

	s.send(newErrorFrame(code, message))
	s.shutdown()
}

// OnClose tears the session down: both directions of the listen-along graph
// are unlinked, the user index entry is removed, and the availability
// registries are updated. Idempotent.
func (c *Coordinator) OnClose(s *Session) {
	s.shutdown()

	c.mu.Lock()

	if s.state == StateClosed {
		c.mu.Unlock()
		return
	}

	s.state = StateClosed

	delete(c.sessions, s.id)

	// Detach from the session's own host, if any.
	c.detachLocked(s)

	// Followers of this session receive one terminal sync so their UI
	// resets.
	for fid := range s.followers {
		if follower, ok := c.sessions[fid]; ok {
			follower.listenTarget = ""
			follower.send(newTerminalSyncFrame())
		}
	}

	s.followers = map[string]struct{}{}

	if s.id == c.botID {
		c.botID = ""
	}

	var (
		lastSession  bool
		wroteRecent  bool
		retractUser  string
		presenceMode = s.presenceMode
	)

	if s.role == RoleUser && s.userID != "" {
		remaining := c.users[s.userID][:0]

		for _, other := range c.users[s.userID] {
			if other.id != s.id {
				remaining = append(remaining, other)
			}
		}

		if len(remaining) == 0 {
			delete(c.users, s.userID)

			lastSession = true
		} else {
			c.users[s.userID] = remaining
		}

		presences := c.gCtx.Inst().Presences

		if lastSession {
			if s.playback.Track != nil {
				presences.SetRecent(c.recentUserLocked(s))

				wroteRecent = true
			}

			presences.ClearOnline(s.userID)

			retractUser = s.userID
		} else {
			c.refreshOnlineLocked(s.userID)
		}
	}

	c.mu.Unlock()

	if prom := c.gCtx.Inst().Prometheus; prom != nil {
		prom.GatewayConnections().Dec()
	}

	if retractUser != "" && presenceMode != model.PresenceModeNone {
		go c.gCtx.Inst().Social.UpdatePresence(c.gCtx, retractUser, nil)
	}

	zap.S().Debugw("gateway, connection closed",
		"session_id", s.id,
		"user_id", s.userID,
		"last_session", lastSession,
		"wrote_recent", wroteRecent,
	)
}

// listenAlongLocked links follower to host and immediately mirrors the
// host's current playback. Re-targeting replaces any previous edge; a
// session keeps at most one outgoing edge.
func (c *Coordinator) listenAlongLocked(follower, host *Session) {
	if follower.id == host.id {
		return
	}

	c.detachLocked(follower)

	follower.listenTarget = host.id
	host.followers[follower.id] = struct{}{}

	follower.send(newSyncFrame(host.playback.Track, host.playback.Progress, host.playback.Paused, false))
}

// stopListeningAlongLocked clears the follower's outgoing edge. When the
// host initiated the stop (it is closing), the follower gets a terminal sync.
func (c *Coordinator) stopListeningAlongLocked(follower *Session, hostInitiated bool) {
	if follower.listenTarget == "" {
		return
	}

	c.detachLocked(follower)

	if hostInitiated {
		follower.send(newTerminalSyncFrame())
	}
}

// detachLocked removes the follower→host edge in both directions.
func (c *Coordinator) detachLocked(follower *Session) {
	if follower.listenTarget == "" {
		return
	}

	if host, ok := c.sessions[follower.listenTarget]; ok {
		delete(host.followers, follower.id)
	}

	follower.listenTarget = ""
}

// broadcastPlaybackLocked fans the host's current playback out to every
// follower, one sync frame each.
func (c *Coordinator) broadcastPlaybackLocked(host *Session, seek bool) {
	for fid := range host.followers {
		if follower, ok := c.sessions[fid]; ok {
			follower.send(newSyncFrame(host.playback.Track, host.playback.Progress, host.playback.Paused, seek))
		}
	}
}

// refreshOnlineLocked recomputes the user's online entry from live session
// state: the entry exists exactly while some session holds a track.
func (c *Coordinator) refreshOnlineLocked(userID string) {
	presences := c.gCtx.Inst().Presences

	for _, s := range c.users[userID] {
		if s.playback.Track != nil {
			presences.SetOnline(c.onlineUserLocked(s))

			return
		}
	}

	presences.ClearOnline(userID)
}

func (c *Coordinator) onlineUserLocked(s *Session) model.OnlineUserModel {
	return model.OnlineUserModel{
		BasicUserModel: s.profile,
		SocialStatus:   s.socialStatus,
		ListeningTo:    s.playback.Track,
		Progress:       s.playback.Progress,
	}
}

func (c *Coordinator) recentUserLocked(s *Session) model.RecentUserModel {
	return model.RecentUserModel{
		BasicUserModel:  s.profile,
		SocialStatus:    s.socialStatus,
		LastSeen:        time.Now().UnixMilli(),
		LastListeningTo: s.playback.Track,
	}
}
