package model

// SocialStatus controls who may observe a user through the availability
// queries.
type SocialStatus string

const (
	SocialStatusNobody   SocialStatus = "Nobody"
	SocialStatusFriends  SocialStatus = "Friends"
	SocialStatusEveryone SocialStatus = "Everyone"
)

// PresenceMode is the client's preference for how its playback is mirrored to
// the external platform.
type PresenceMode string

const (
	PresenceModeGeneric PresenceMode = "Generic"
	PresenceModeSimple  PresenceMode = "Simple"
	PresenceModeNone    PresenceMode = "None"
)

// OnlineUserModel is a derived record: it exists exactly while some active
// session of the user holds a non-nil track. Never persisted.
type OnlineUserModel struct {
	BasicUserModel `bson:",inline"`

	SocialStatus SocialStatus `json:"socialStatus"`
	ListeningTo  *TrackModel  `json:"listeningTo"`
	Progress     float64      `json:"progress"`
}

// RecentUserModel is a derived record written at teardown of a user's last
// session, if that session had a track. Overwritten on each qualifying
// disconnect and cleared when the user plays again.
type RecentUserModel struct {
	BasicUserModel `bson:",inline"`

	SocialStatus    SocialStatus `json:"socialStatus"`
	LastSeen        int64        `json:"lastSeen"`
	LastListeningTo *TrackModel  `json:"lastListeningTo"`
}

// PresenceModel is the rich-presence activity payload relayed to the external
// social platform.
type PresenceModel struct {
	Name    string `json:"name"`
	Type    int    `json:"type"`
	Details string `json:"details,omitempty"`
	State   string `json:"state,omitempty"`

	Assets *PresenceAssets `json:"assets,omitempty"`

	StartedAt int64 `json:"start_timestamp,omitempty"`
	EndsAt    int64 `json:"end_timestamp,omitempty"`
}

type PresenceAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// FriendModel is a relationship entry returned by the social platform.
type FriendModel struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}
