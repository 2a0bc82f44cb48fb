package gateway

import "github.com/tunesync/api/data/model"

// Outbound frames. Every frame carries a type and a timestamp; the timestamp
// is stamped at send time when the producer left it zero.
type frameBase struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (b *frameBase) stamp(now int64) {
	if b.Timestamp == 0 {
		b.Timestamp = now
	}
}

type outbound interface {
	stamp(now int64)
}

// welcomeFrame is sent once, immediately after the connection is accepted.
type welcomeFrame struct {
	frameBase
	Code int `json:"code"`
}

func newWelcomeFrame() *welcomeFrame {
	return &welcomeFrame{frameBase: frameBase{Type: "initialize"}}
}

type errorFrame struct {
	frameBase
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newErrorFrame(code int, message string) *errorFrame {
	return &errorFrame{
		frameBase: frameBase{Type: "error"},
		Code:      code,
		Message:   message,
	}
}

type latencyFrame struct {
	frameBase
	Latency int64 `json:"latency"`
}

func newLatencyFrame(latency int64) *latencyFrame {
	return &latencyFrame{
		frameBase: frameBase{Type: "latency"},
		Latency:   latency,
	}
}

// syncFrame mirrors a host's playback to a follower. A nil track with a
// negative progress is the terminal frame telling the follower to reset.
type syncFrame struct {
	frameBase
	Track    *model.TrackModel `json:"track"`
	Progress float64           `json:"progress"`
	Paused   bool              `json:"paused"`
	Seek     bool              `json:"seek"`
}

func newSyncFrame(track *model.TrackModel, progress float64, paused, seek bool) *syncFrame {
	return &syncFrame{
		frameBase: frameBase{Type: "sync"},
		Track:     track,
		Progress:  progress,
		Paused:    paused,
		Seek:      seek,
	}
}

func newTerminalSyncFrame() *syncFrame {
	return &syncFrame{
		frameBase: frameBase{Type: "sync"},
		Track:     nil,
		Progress:  -1,
		Paused:    true,
	}
}

type recentsFrame struct {
	frameBase
	Recents []model.TrackModel `json:"recents"`
}

func newRecentsFrame(recents []model.TrackModel) *recentsFrame {
	return &recentsFrame{
		frameBase: frameBase{Type: "recents"},
		Recents:   recents,
	}
}

type volumeFrame struct {
	frameBase
	Volume float64 `json:"volume"`
}

func newVolumeFrame(volume float64) *volumeFrame {
	return &volumeFrame{
		frameBase: frameBase{Type: "volume"},
		Volume:    volume,
	}
}

type successFrame struct {
	frameBase
	Data map[string]interface{} `json:"data,omitempty"`
}

func newSuccessFrame(data map[string]interface{}) *successFrame {
	return &successFrame{
		frameBase: frameBase{Type: "success"},
		Data:      data,
	}
}
