package model

// UserModel is the user document as stored in mongo. The document store is
// the source of truth for identity and credentials only; live playback state
// never touches it.
type UserModel struct {
	UserID        string `json:"userId" bson:"user_id"`
	Username      string `json:"username" bson:"username"`
	Discriminator string `json:"discriminator" bson:"discriminator"`
	Avatar        string `json:"avatar" bson:"avatar"`

	// AccessToken is the opaque token clients present to the gateway and the
	// read APIs.
	AccessToken string `json:"accessToken,omitempty" bson:"access_token"`

	// Credentials held against the external social platform.
	Discord   string `json:"-" bson:"discord,omitempty"`
	Refresh   string `json:"-" bson:"refresh,omitempty"`
	TokenType string `json:"-" bson:"token_type,omitempty"`
	Scope     string `json:"-" bson:"scope,omitempty"`
	ExpiresAt int64  `json:"-" bson:"expires_at,omitempty"`

	// PresenceToken is the continuation id returned by the platform's rich
	// presence endpoint, required to retract a previously posted presence.
	PresenceToken string `json:"-" bson:"presence_token,omitempty"`

	RecentlyPlayed []TrackModel `json:"recentlyPlayed,omitempty" bson:"recently_played,omitempty"`
	LikedSongs     []TrackModel `json:"likedSongs,omitempty" bson:"liked_songs,omitempty"`
	Playlists      []string     `json:"playlists,omitempty" bson:"playlists,omitempty"`
}

// BasicUserModel is the public slice of a user profile shared between the
// availability registries and the bot's roster messages.
type BasicUserModel struct {
	UserID        string `json:"userId" bson:"user_id"`
	Username      string `json:"username" bson:"username"`
	Discriminator string `json:"discriminator" bson:"discriminator"`
	Avatar        string `json:"avatar" bson:"avatar"`
}

func (u UserModel) Basic() BasicUserModel {
	return BasicUserModel{
		UserID:        u.UserID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
	}
}
