package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tunesync/api/data/model"
	"github.com/tunesync/api/internal/configure"
	"github.com/tunesync/api/internal/global"
	"github.com/tunesync/api/internal/svc/presences"
	"github.com/tunesync/api/internal/svc/prometheus"
	"github.com/tunesync/api/internal/svc/users"
	"github.com/tunesync/api/internal/testutil"
)

const waitFor = time.Second * 2

// captureConn is an in-memory transport capturing every outbound frame.
type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *captureConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := make([]byte, len(data))
	copy(b, data)
	c.frames = append(c.frames, b)

	return nil
}

func (c *captureConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func (c *captureConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// FramesOfType decodes captured frames and returns those with the given type.
func (c *captureConn) FramesOfType(t *testing.T, typ string) []map[string]interface{} {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	var result []map[string]interface{}

	for _, b := range c.frames {
		frame := map[string]interface{}{}
		testutil.DecodeJSON(t, b, &frame)

		if frame["type"] == typ {
			result = append(result, frame)
		}
	}

	return result
}

type memUsers struct {
	mu      sync.Mutex
	byToken map[string]model.UserModel
	byID    map[string]model.UserModel
}

func newMemUsers(list ...model.UserModel) *memUsers {
	m := &memUsers{
		byToken: map[string]model.UserModel{},
		byID:    map[string]model.UserModel{},
	}

	for _, u := range list {
		m.byToken[u.AccessToken] = u
		m.byID[u.UserID] = u
	}

	return m
}

func (m *memUsers) Get(_ context.Context, userID string) (model.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return model.UserModel{}, users.ErrUserNotFound
	}

	return u, nil
}

func (m *memUsers) GetByToken(_ context.Context, token string) (model.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byToken[token]
	if !ok {
		return model.UserModel{}, users.ErrUserNotFound
	}

	return u, nil
}

func (m *memUsers) Save(_ context.Context, user model.UserModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[user.UserID] = user
	m.byToken[user.AccessToken] = user

	return nil
}

func (m *memUsers) Update(ctx context.Context, user model.UserModel) error {
	return m.Save(ctx, user)
}

func (m *memUsers) PushRecentlyPlayed(_ context.Context, userID string, track model.TrackModel) ([]model.TrackModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return nil, users.ErrUserNotFound
	}

	recents := append([]model.TrackModel{track}, u.RecentlyPlayed...)
	u.RecentlyPlayed = recents
	m.byID[userID] = u

	return recents, nil
}

type presenceCall struct {
	userID   string
	presence *model.PresenceModel
}

type stubSocial struct {
	mu      sync.Mutex
	friends map[string][]model.FriendModel
	calls   []presenceCall
}

func (s *stubSocial) Friends(_ context.Context, userID string) ([]model.FriendModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.friends[userID], nil
}

func (s *stubSocial) UpdatePresence(_ context.Context, userID string, presence *model.PresenceModel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, presenceCall{userID: userID, presence: presence})
}

func (s *stubSocial) ExchangeCode(_ context.Context, _ string) (model.UserModel, error) {
	return model.UserModel{}, users.ErrUserNotFound
}

func (s *stubSocial) presenceCalls() []presenceCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]presenceCall(nil), s.calls...)
}

func newTestCoordinator(t *testing.T) (*Coordinator, global.Context, *stubSocial) {
	t.Helper()

	config := &configure.Config{}
	config.Gateway.BotToken = "BOT"

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))
	t.Cleanup(cancel)

	store := newMemUsers(
		model.UserModel{UserID: "u1", Username: "one", AccessToken: "T1"},
		model.UserModel{UserID: "u2", Username: "two", AccessToken: "T2"},
		model.UserModel{UserID: "u3", Username: "three", AccessToken: "T3"},
	)

	social := &stubSocial{friends: map[string][]model.FriendModel{}}

	gCtx.Inst().Users = store
	gCtx.Inst().Social = social
	gCtx.Inst().Presences = presences.New(presences.Options{Users: store, Social: social})
	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{})

	return NewCoordinator(gCtx), gCtx, social
}

func connect(t *testing.T, c *Coordinator) (*Session, *captureConn) {
	t.Helper()

	conn := &captureConn{}
	s := c.Accept(conn)

	return s, conn
}

func initialize(t *testing.T, c *Coordinator, s *Session, token string) {
	t.Helper()

	c.OnMessage(s, []byte(`{"type":"initialize","token":"`+token+`"}`))

	testutil.Eventually(t, waitFor, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()

		return s.state == StateActive
	}, "session became active")
}

func connectUser(t *testing.T, c *Coordinator, token string) (*Session, *captureConn) {
	t.Helper()

	s, conn := connect(t, c)
	initialize(t, c, s, token)

	return s, conn
}

func track(id string) string {
	return `{"id":"` + id + `","title":"Track ` + id + `","artist":"Artist","duration":1000}`
}

func TestFirstFrameMustInitialize(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connect(t, c)

	c.OnMessage(s, []byte(`{"type":"latency"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "error")) == 1 && conn.Closed()
	}, "error frame followed by close")

	frame := conn.FramesOfType(t, "error")[0]
	testutil.Assert(t, float64(CodeNotInitialized), frame["code"].(float64), "error code")
}

func TestInvalidJSONCloses(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{{{`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "error")) == 1 && conn.Closed()
	}, "error frame followed by close")

	frame := conn.FramesOfType(t, "error")[0]
	testutil.Assert(t, float64(CodeInvalidJSON), frame["code"].(float64), "error code")
}

func TestUnknownMessageCloses(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"mystery"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "error")) == 1 && conn.Closed()
	}, "error frame followed by close")

	frame := conn.FramesOfType(t, "error")[0]
	testutil.Assert(t, float64(CodeUnknownMessage), frame["code"].(float64), "error code")
}

func TestAuthFailureCloses(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connect(t, c)

	c.OnMessage(s, []byte(`{"type":"initialize","token":"nope"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "error")) == 1 && conn.Closed()
	}, "error frame followed by close")

	frame := conn.FramesOfType(t, "error")[0]
	testutil.Assert(t, float64(CodeInitializeFailed), frame["code"].(float64), "error code")
}

func TestPlayingCreatesOnlineEntry(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)
	s, _ := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0,"sync":true}`))

	online, ok := gCtx.Inst().Presences.Online("u1")
	testutil.Assert(t, true, ok, "online entry exists")
	testutil.Assert(t, "abc", online.ListeningTo.ID, "listening to")
	testutil.Assert(t, float64(0), online.Progress, "progress")

	// The track also lands at the head of the stored history.
	testutil.Eventually(t, waitFor, func() bool {
		u, err := gCtx.Inst().Users.Get(context.Background(), "u1")

		return err == nil && len(u.RecentlyPlayed) == 1 && u.RecentlyPlayed[0].ID == "abc"
	}, "recently played recorded")
}

func TestOnlineEntryClearedWhenTrackNull(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)
	s, _ := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0}`))
	c.OnMessage(s, []byte(`{"type":"playing","track":null,"seek":0}`))

	_, ok := gCtx.Inst().Presences.Online("u1")
	testutil.Assert(t, false, ok, "online entry removed")
}

func TestListenRequiresHostTrack(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	host, _ := connectUser(t, c, "T1")
	follower, followerConn := connectUser(t, c, "T2")

	c.OnMessage(follower, []byte(`{"type":"listen","with":"u1"}`))

	c.mu.Lock()
	testutil.Assert(t, "", follower.listenTarget, "no edge created")
	testutil.Assert(t, 0, len(host.followers), "host has no followers")
	c.mu.Unlock()

	testutil.Assert(t, 0, len(followerConn.FramesOfType(t, "sync")), "no sync frame")
}

func TestListenAlongSyncsAndBroadcasts(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	host, _ := connectUser(t, c, "T1")
	follower, followerConn := connectUser(t, c, "T2")

	c.OnMessage(host, []byte(`{"type":"playing","track":`+track("X")+`,"seek":5}`))
	c.OnMessage(follower, []byte(`{"type":"listen","with":"u1"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(followerConn.FramesOfType(t, "sync")) == 1
	}, "immediate sync on listen")

	first := followerConn.FramesOfType(t, "sync")[0]
	testutil.Assert(t, "X", first["track"].(map[string]interface{})["id"].(string), "synced track")
	testutil.Assert(t, float64(5), first["progress"].(float64), "synced progress")

	c.OnMessage(host, []byte(`{"type":"playing","track":`+track("Y")+`,"seek":0,"sync":true}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(followerConn.FramesOfType(t, "sync")) == 2
	}, "broadcast on host change")

	second := followerConn.FramesOfType(t, "sync")[1]
	testutil.Assert(t, "Y", second["track"].(map[string]interface{})["id"].(string), "broadcast track")
}

func TestFanOutReachesEveryFollower(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	host, _ := connectUser(t, c, "T1")
	f1, conn1 := connectUser(t, c, "T2")
	f2, conn2 := connectUser(t, c, "T3")

	c.OnMessage(host, []byte(`{"type":"playing","track":`+track("X")+`,"seek":0}`))
	c.OnMessage(f1, []byte(`{"type":"listen","with":"u1"}`))
	c.OnMessage(f2, []byte(`{"type":"listen","with":"u1"}`))

	c.OnMessage(host, []byte(`{"type":"playing","track":`+track("Y")+`,"seek":1}`))

	for _, conn := range []*captureConn{conn1, conn2} {
		testutil.Eventually(t, waitFor, func() bool {
			return len(conn.FramesOfType(t, "sync")) == 2
		}, "each follower got exactly the join sync and the broadcast")
	}
}

func TestRetargetingReplacesEdge(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	b, _ := connectUser(t, c, "T1")
	cc, _ := connectUser(t, c, "T2")
	a, _ := connectUser(t, c, "T3")

	c.OnMessage(b, []byte(`{"type":"playing","track":`+track("B")+`,"seek":0}`))
	c.OnMessage(cc, []byte(`{"type":"playing","track":`+track("C")+`,"seek":0}`))

	c.OnMessage(a, []byte(`{"type":"listen","with":"u1"}`))
	c.OnMessage(a, []byte(`{"type":"listen","with":"u2"}`))

	c.mu.Lock()
	defer c.mu.Unlock()

	testutil.Assert(t, cc.id, a.listenTarget, "follows only the new host")

	_, stillFollowing := b.followers[a.id]
	testutil.Assert(t, false, stillFollowing, "old host lost the follower")

	_, following := cc.followers[a.id]
	testutil.Assert(t, true, following, "new host gained the follower")
}

func TestHostCloseSendsTerminalSync(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	host, _ := connectUser(t, c, "T1")
	f1, conn1 := connectUser(t, c, "T2")
	f2, conn2 := connectUser(t, c, "T3")

	c.OnMessage(host, []byte(`{"type":"playing","track":`+track("X")+`,"seek":0}`))
	c.OnMessage(f1, []byte(`{"type":"listen","with":"u1"}`))
	c.OnMessage(f2, []byte(`{"type":"listen","with":"u1"}`))

	c.OnClose(host)

	for _, conn := range []*captureConn{conn1, conn2} {
		testutil.Eventually(t, waitFor, func() bool {
			frames := conn.FramesOfType(t, "sync")

			return len(frames) == 2 && frames[1]["track"] == nil
		}, "terminal sync with null track")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	testutil.Assert(t, "", f1.listenTarget, "edge cleared")
	testutil.Assert(t, "", f2.listenTarget, "edge cleared")
}

func TestLastDisconnectWritesRecent(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)
	s, _ := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0}`))

	c.OnClose(s)

	_, online := gCtx.Inst().Presences.Online("u1")
	testutil.Assert(t, false, online, "online entry removed")

	recent, ok := gCtx.Inst().Presences.Recent("u1")
	testutil.Assert(t, true, ok, "recent entry written")
	testutil.Assert(t, "abc", recent.LastListeningTo.ID, "last listening to")

	// Reconnecting clears the recent entry again.
	connectUser(t, c, "T1")

	_, ok = gCtx.Inst().Presences.Recent("u1")
	testutil.Assert(t, false, ok, "recent entry cleared on reconnect")
}

func TestSecondSessionKeepsUserOnline(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)
	s1, _ := connectUser(t, c, "T1")
	s2, _ := connectUser(t, c, "T1")

	c.OnMessage(s1, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0}`))

	c.OnClose(s2)

	_, ok := gCtx.Inst().Presences.Online("u1")
	testutil.Assert(t, true, ok, "still online while a playing session remains")

	_, ok = gCtx.Inst().Presences.Recent("u1")
	testutil.Assert(t, false, ok, "recent not written before the last session closes")

	c.OnClose(s1)

	_, ok = gCtx.Inst().Presences.Recent("u1")
	testutil.Assert(t, true, ok, "recent written at last-session teardown")
}

func TestVolumeEcho(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"volume","volume":0.5,"send_back":true}`))

	testutil.Eventually(t, waitFor, func() bool {
		frames := conn.FramesOfType(t, "volume")

		return len(frames) == 1 && frames[0]["volume"] == 0.5
	}, "volume echoed back")

	c.OnMessage(s, []byte(`{"type":"volume","volume":0.7,"send_back":false}`))

	c.mu.Lock()
	testutil.Assert(t, 0.7, s.playback.Volume, "volume stored")
	c.mu.Unlock()

	testutil.Assert(t, 1, len(conn.FramesOfType(t, "volume")), "no echo without send_back")
}

func TestLatencyReply(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)
	s, conn := connectUser(t, c, "T1")

	// The handshake already acknowledges with one latency frame.
	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "latency")) == 1
	}, "handshake ack")

	c.OnMessage(s, []byte(`{"type":"latency","timestamp":1}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(conn.FramesOfType(t, "latency")) == 2
	}, "latency reply")
}

func TestBotSingleton(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)

	bot, botConn := connect(t, c)
	c.OnMessage(bot, []byte(`{"type":"initialize","token":"BOT"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(botConn.FramesOfType(t, "success")) == 1
	}, "bot acknowledged")

	c.mu.Lock()
	testutil.Assert(t, RoleBot, bot.role, "role")
	testutil.Assert(t, BotUserID, bot.userID, "user id")
	c.mu.Unlock()

	// The slot is taken; a second bot handshake resolves as a regular token
	// and fails.
	second, secondConn := connect(t, c)
	c.OnMessage(second, []byte(`{"type":"initialize","token":"BOT"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return secondConn.Closed()
	}, "second bot rejected")

	// Closing the bot frees the slot.
	c.OnClose(bot)

	third, thirdConn := connect(t, c)
	c.OnMessage(third, []byte(`{"type":"initialize","token":"BOT"}`))

	testutil.Eventually(t, waitFor, func() bool {
		return len(thirdConn.FramesOfType(t, "success")) == 1
	}, "slot reusable after close")
}

func TestBotRosterMaintenance(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)

	bot, _ := connect(t, c)
	c.OnMessage(bot, []byte(`{"type":"initialize","token":"BOT"}`))

	s, _ := connectUser(t, c, "T1")
	c.OnMessage(s, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0}`))

	c.OnMessage(bot, []byte(`{"type":"load-users","users":[{"userId":"u1","username":"one"},{"userId":"u9","username":"other"}]}`))

	testutil.Assert(t, 2, len(gCtx.Inst().Presences.Roster()), "roster loaded")

	online, ok := gCtx.Inst().Presences.Online("u1")
	testutil.Assert(t, true, ok, "live playback merged")
	testutil.Assert(t, "abc", online.ListeningTo.ID, "merged track")

	c.OnMessage(bot, []byte(`{"type":"user-update","user":{"userId":"u9","username":"other"},"state":"offline"}`))
	testutil.Assert(t, 1, len(gCtx.Inst().Presences.Roster()), "roster entry removed")
}

func TestRosterMessagesRequireBot(t *testing.T) {
	t.Parallel()

	c, gCtx, _ := newTestCoordinator(t)
	s, conn := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"load-users","users":[{"userId":"u9"}]}`))

	testutil.Assert(t, 0, len(gCtx.Inst().Presences.Roster()), "roster untouched")
	testutil.Assert(t, false, conn.Closed(), "session stays open")
}

func TestPresenceBridgeFollowsPlayback(t *testing.T) {
	t.Parallel()

	c, _, social := newTestCoordinator(t)
	s, _ := connectUser(t, c, "T1")

	c.OnMessage(s, []byte(`{"type":"playing","track":`+track("abc")+`,"seek":0}`))

	testutil.Eventually(t, waitFor, func() bool {
		calls := social.presenceCalls()

		return len(calls) == 1 && calls[0].presence != nil
	}, "presence pushed on playback")

	c.OnClose(s)

	testutil.Eventually(t, waitFor, func() bool {
		calls := social.presenceCalls()

		return len(calls) == 2 && calls[1].presence == nil
	}, "presence retracted on teardown")
}
