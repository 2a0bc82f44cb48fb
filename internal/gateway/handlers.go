package gateway

import (
	"errors"
	"time"

	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/global"
	"github.com/tunesync/api/internal/svc/users"
	"go.uber.org/zap"
)

const resolveTimeout = time.Second * 10

// OnMessage processes one inbound wire message for the session. Messages of
// one connection arrive here strictly in order; different connections
// interleave freely.
func (c *Coordinator) OnMessage(s *Session, data []byte) {
	msg, clientTS, err := decodeInbound(data)

	if prom := c.gCtx.Inst().Prometheus; prom != nil {
		prom.GatewayMessages().WithLabelValues(messageType(msg)).Inc()
	}

	if err != nil {
		if errors.Is(err, errUnknownMessage) {
			c.mu.Lock()
			uninitialized := s.state == StateUninitialized
			c.mu.Unlock()

			// An unknown type on a fresh connection reads as a client that
			// skipped the handshake.
			if uninitialized {
				c.fail(s, CodeNotInitialized, "not-initialized")
			} else {
				c.fail(s, CodeUnknownMessage, "unknown-message")
			}

			return
		}

		c.fail(s, CodeInvalidJSON, "invalid-json")

		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	if s.state == StateUninitialized {
		init, ok := msg.(InitializePayload)
		if !ok {
			c.fail(s, CodeNotInitialized, "not-initialized")

			return
		}

		c.handleInitializeLocked(s, init)

		return
	}

	switch payload := msg.(type) {
	case InitializePayload:
		// Repeated handshakes are ignored.
	case LatencyPayload:
		c.handleLatencyLocked(s, clientTS)
	case PlayingPayload:
		c.handlePlayingLocked(s, payload)
	case VolumePayload:
		c.handleVolumeLocked(s, payload)
	case ListenPayload:
		c.handleListenLocked(s, payload)
	case LoadUsersPayload:
		c.handleLoadUsersLocked(s, payload)
	case UserUpdatePayload:
		c.handleUserUpdateLocked(s, payload)
	}
}

func (c *Coordinator) handleInitializeLocked(s *Session, payload InitializePayload) {
	s.state = StateAuthenticating
	s.lastPingAt = time.Now()

	// The reserved bot credential claims the singleton bot slot directly;
	// everything else resolves against the user store off the lock.
	botToken := c.gCtx.Config().Gateway.BotToken

	if botToken != "" && payload.Token == botToken && c.botID == "" {
		s.state = StateActive
		s.role = RoleBot
		s.userID = BotUserID
		c.botID = s.id

		s.send(newSuccessFrame(map[string]interface{}{"type": "fetch"}))

		zap.S().Debugw("gateway, session initialized as bot",
			"session_id", s.id,
		)

		return
	}

	go c.resolveUser(s.id, payload)
}

// resolveUser authenticates the token against the user store. It runs off
// the coordinator lock; the session is re-validated after the store call
// since the connection may have closed meanwhile.
func (c *Coordinator) resolveUser(sessionID string, payload InitializePayload) {
	ctx, cancel := global.WithTimeout(c.gCtx, resolveTimeout)
	defer cancel()

	user, err := c.gCtx.Inst().Users.GetByToken(ctx, payload.Token)

	c.mu.Lock()

	s, ok := c.sessions[sessionID]
	if !ok || s.state == StateClosed {
		c.mu.Unlock()
		return
	}

	if err != nil {
		c.mu.Unlock()

		if !errors.Is(err, users.ErrUserNotFound) {
			zap.S().Errorw("gateway, token resolution failed",
				"session_id", sessionID,
				"error", err,
			)
		}

		// A token that does not resolve is a dead end for this connection;
		// tell the client and close instead of leaving it half initialized.
		c.fail(s, CodeInitializeFailed, "initialize-failed")

		return
	}

	s.state = StateActive
	s.role = RoleUser
	s.userID = user.UserID
	s.profile = user.Basic()

	s.socialStatus = payload.Broadcast
	if s.socialStatus == "" {
		s.socialStatus = model.SocialStatusEveryone
	}

	if payload.Presence != "" {
		s.presenceMode = payload.Presence
	}

	c.users[user.UserID] = append(c.users[user.UserID], s)

	// Reconnecting invalidates any lingering recent entry.
	c.gCtx.Inst().Presences.ClearRecent(user.UserID)

	c.mu.Unlock()

	s.send(newLatencyFrame(0))

	zap.S().Debugw("gateway, session initialized",
		"session_id", sessionID,
		"user_id", user.UserID,
	)
}

func (c *Coordinator) handleLatencyLocked(s *Session, clientTS int64) {
	latency := time.Since(s.lastPingAt).Milliseconds()

	if clientTS > 0 {
		s.lastPingAt = time.UnixMilli(clientTS)
		latency = time.Now().UnixMilli() - clientTS
	}

	s.send(newLatencyFrame(latency))
}

func (c *Coordinator) handlePlayingLocked(s *Session, payload PlayingPayload) {
	if s.role != RoleUser || s.userID == "" {
		return
	}

	previous := s.playback.Track
	changed := !previous.Same(payload.Track)

	s.playback.Track = payload.Track
	s.playback.Progress = payload.Seek
	s.playback.Paused = payload.Paused

	if changed {
		s.playback.StartedAt = time.Now()
	}

	c.broadcastPlaybackLocked(s, payload.Seeked)
	c.refreshOnlineLocked(s.userID)

	if changed && payload.Track != nil {
		go c.pushRecentlyPlayed(s.userID, *payload.Track)
	}

	if changed && s.presenceMode != model.PresenceModeNone {
		presence := presenceFor(s.presenceMode, s.playback)

		go c.gCtx.Inst().Social.UpdatePresence(c.gCtx, s.userID, presence)
	}
}

// pushRecentlyPlayed persists the track at the head of the user's history
// and broadcasts the updated list to all of the user's sessions. Store
// failures abandon the operation; the session is unaffected.
func (c *Coordinator) pushRecentlyPlayed(userID string, track model.TrackModel) {
	ctx, cancel := global.WithTimeout(c.gCtx, resolveTimeout)
	defer cancel()

	recents, err := c.gCtx.Inst().Users.PushRecentlyPlayed(ctx, userID, track)
	if err != nil {
		zap.S().Errorw("gateway, failed to record recently played",
			"user_id", userID,
			"error", err,
		)

		return
	}

	c.mu.Lock()
	sessions := append([]*Session(nil), c.users[userID]...)
	c.mu.Unlock()

	for _, other := range sessions {
		other.send(newRecentsFrame(recents))
	}
}

func (c *Coordinator) handleVolumeLocked(s *Session, payload VolumePayload) {
	s.playback.Volume = payload.Volume

	if payload.SendBack {
		s.send(newVolumeFrame(payload.Volume))
	}
}

func (c *Coordinator) handleListenLocked(s *Session, payload ListenPayload) {
	if payload.With == nil {
		c.stopListeningAlongLocked(s, false)

		return
	}

	hosts := c.users[*payload.With]
	if len(hosts) == 0 {
		return
	}

	host := hosts[0]

	// Listening along requires the host to actually be playing something.
	if host.playback.Track == nil {
		return
	}

	c.listenAlongLocked(s, host)
}

func (c *Coordinator) handleLoadUsersLocked(s *Session, payload LoadUsersPayload) {
	if s.role != RoleBot {
		zap.S().Debugw("gateway, load-users from non-bot session",
			"session_id", s.id,
		)

		return
	}

	presences := c.gCtx.Inst().Presences
	presences.LoadRoster(payload.Users)

	// Merge live playback into the fresh roster.
	for _, u := range payload.Users {
		for _, live := range c.users[u.UserID] {
			if live.playback.Track != nil {
				live.profile = u
				presences.SetOnline(c.onlineUserLocked(live))

				break
			}
		}
	}
}

func (c *Coordinator) handleUserUpdateLocked(s *Session, payload UserUpdatePayload) {
	if s.role != RoleBot {
		zap.S().Debugw("gateway, user-update from non-bot session",
			"session_id", s.id,
		)

		return
	}

	presences := c.gCtx.Inst().Presences

	switch payload.State {
	case "online":
		presences.SetAvailable(payload.User)

		for _, live := range c.users[payload.User.UserID] {
			if live.playback.Track != nil {
				live.profile = payload.User
				presences.SetOnline(c.onlineUserLocked(live))

				break
			}
		}
	case "offline":
		presences.RemoveAvailable(payload.User.UserID)
		presences.ClearOnline(payload.User.UserID)
	}
}
