package gateway

import (
	"github.com/tunesync/api/data/model"
)

// presenceFor builds the rich-presence activity for the session's current
// playback, honoring the client's presence preference. A nil result retracts
// any previously posted presence.
func presenceFor(mode model.PresenceMode, playback Playback) *model.PresenceModel {
	if mode == model.PresenceModeNone || playback.Track == nil {
		return nil
	}

	track := playback.Track

	started := playback.StartedAt.UnixMilli()
	ends := int64(0)

	if track.Duration > 0 {
		ends = started + track.Duration
	}

	switch mode {
	case model.PresenceModeSimple:
		return &model.PresenceModel{
			Name: track.Title,
			Type: 2,

			StartedAt: started,
			EndsAt:    ends,
		}
	default:
		return &model.PresenceModel{
			Name:    "TuneSync",
			Type:    2,
			Details: track.Title,
			State:   track.Artist,

			Assets: &model.PresenceAssets{
				LargeImage: track.Icon,
				LargeText:  track.Title,
			},

			StartedAt: started,
			EndsAt:    ends,
		}
	}
}
