package model

// TrackModel describes a playable track as it travels over the gateway and
// as it is embedded in user documents.
type TrackModel struct {
	ID       string `json:"id" bson:"id"`
	Title    string `json:"title" bson:"title"`
	Artist   string `json:"artist" bson:"artist"`
	Icon     string `json:"icon" bson:"icon"`
	URL      string `json:"url" bson:"url"`
	Duration int64  `json:"duration" bson:"duration"`
}

// Same reports whether two optional tracks refer to the same underlying track.
func (t *TrackModel) Same(other *TrackModel) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.ID == other.ID
}
