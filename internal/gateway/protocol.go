package gateway

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
	"github.com/tunesync/api/data/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error codes carried by outbound error frames. Every error frame is followed
// by an unconditional close of the connection.
const (
	CodeInvalidJSON      = 1
	CodeNotInitialized   = 2
	CodeUnknownMessage   = 3
	CodeInitializeFailed = 4
)

var (
	errInvalidJSON    = errors.New("invalid json")
	errUnknownMessage = errors.New("unknown message type")
)

// Inbound is the tagged union of client messages. decodeInbound turns raw
// wire input into one of these; the router matches exhaustively.
type Inbound interface {
	isInbound()
}

type InitializePayload struct {
	Token     string             `json:"token"`
	Broadcast model.SocialStatus `json:"broadcast"`
	Presence  model.PresenceMode `json:"presence"`
}

type LatencyPayload struct{}

type PlayingPayload struct {
	Track  *model.TrackModel `json:"track"`
	Seek   float64           `json:"seek"`
	Sync   bool              `json:"sync"`
	Paused bool              `json:"paused"`
	Seeked bool              `json:"seeked"`
}

type VolumePayload struct {
	Volume   float64 `json:"volume"`
	SendBack bool    `json:"send_back"`
}

type ListenPayload struct {
	// With is the user id to listen along with; nil stops listening.
	With *string `json:"with"`
}

// LoadUsersPayload replaces the platform availability roster. Bot only.
type LoadUsersPayload struct {
	Users []model.BasicUserModel `json:"users"`
}

// UserUpdatePayload flips a single roster entry. Bot only.
type UserUpdatePayload struct {
	User  model.BasicUserModel `json:"user"`
	State string               `json:"state"`
}

func (InitializePayload) isInbound() {}
func (LatencyPayload) isInbound()    {}
func (PlayingPayload) isInbound()    {}
func (VolumePayload) isInbound()     {}
func (ListenPayload) isInbound()     {}
func (LoadUsersPayload) isInbound()  {}
func (UserUpdatePayload) isInbound() {}

type envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// decodeInbound parses one wire message. The returned timestamp is the
// client's, zero when absent.
func decodeInbound(data []byte) (Inbound, int64, error) {
	env := envelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, errInvalidJSON
	}

	var (
		msg Inbound
		err error
	)

	switch env.Type {
	case "initialize":
		payload := InitializePayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	case "latency":
		msg = LatencyPayload{}
	case "playing":
		payload := PlayingPayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	case "volume":
		payload := VolumePayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	case "listen":
		payload := ListenPayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	case "load-users":
		payload := LoadUsersPayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	case "user-update":
		payload := UserUpdatePayload{}
		err = json.Unmarshal(data, &payload)
		msg = payload
	default:
		return nil, env.Timestamp, errUnknownMessage
	}

	if err != nil {
		return nil, env.Timestamp, errInvalidJSON
	}

	return msg, env.Timestamp, nil
}

func messageType(msg Inbound) string {
	switch msg.(type) {
	case InitializePayload:
		return "initialize"
	case LatencyPayload:
		return "latency"
	case PlayingPayload:
		return "playing"
	case VolumePayload:
		return "volume"
	case ListenPayload:
		return "listen"
	case LoadUsersPayload:
		return "load-users"
	case UserUpdatePayload:
		return "user-update"
	}

	return "unknown"
}
