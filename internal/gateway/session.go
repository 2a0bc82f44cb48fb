package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tunesync/api/data/model"
	"go.uber.org/zap"
)

// Conn is the raw bidirectional transport under a session. The websocket
// adapter implements it in production; tests substitute a capture.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// BotUserID is the synthetic user id assigned to the privileged bot session.
const BotUserID = "bot"

type Playback struct {
	Track     *model.TrackModel
	Progress  float64
	Paused    bool
	Volume    float64
	StartedAt time.Time
}

// Session is the server-side state for one live connection. Everything below
// conn is owned by the Coordinator and only mutated under its lock; the
// outbound path has its own pump so registry mutation never blocks on the
// network.
type Session struct {
	id   string
	conn Conn

	state        State
	role         Role
	userID       string
	profile      model.BasicUserModel
	socialStatus model.SocialStatus
	presenceMode model.PresenceMode
	playback     Playback
	listenTarget string
	followers    map[string]struct{}
	lastPingAt   time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

const outboundBuffer = 32

func newSession(conn Conn) *Session {
	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		state:        StateUninitialized,
		socialStatus: model.SocialStatusNobody,
		presenceMode: model.PresenceModeGeneric,
		playback: Playback{
			Paused: true,
			Volume: 1.0,
		},
		followers:  map[string]struct{}{},
		lastPingAt: time.Now(),

		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}

	go s.writePump()

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

// send queues one frame, stamping its timestamp. Frames are fire-and-forget:
// a closed session or a full buffer drops the frame.
func (s *Session) send(f outbound) {
	f.stamp(time.Now().UnixMilli())

	b, err := json.Marshal(f)
	if err != nil {
		zap.S().Errorw("gateway, failed to encode frame",
			"session_id", s.id,
			"error", err,
		)

		return
	}

	select {
	case <-s.done:
	case s.out <- b:
	default:
		zap.S().Warnw("gateway, outbound buffer full, dropping frame",
			"session_id", s.id,
		)
	}
}

// shutdown stops the session's outbound path. Queued frames are flushed, then
// the transport is closed; the read loop will observe the close and run the
// coordinator teardown.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) closedSignal() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			// Flush whatever was queued before the close.
			for {
				select {
				case b := <-s.out:
					_ = s.conn.WriteMessage(b)
					continue
				default:
				}

				break
			}

			_ = s.conn.Close()

			return
		case b := <-s.out:
			if err := s.conn.WriteMessage(b); err != nil {
				s.shutdown()
			}
		}
	}
}
