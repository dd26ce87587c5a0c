package models

// SyncItem is a normalized watched-episode event from a media server webhook
type SyncItem struct {
	MediaType   string `json:"media_type"`
	Title       string `json:"title"`
	OriTitle    string `json:"ori_title,omitempty"`
	Season      int    `json:"season"`
	Episode     int    `json:"episode"`
	ReleaseDate string `json:"release_date,omitempty"` // YYYY-MM-DD
	UserName    string `json:"user_name"`
	Source      Source `json:"source,omitempty"`
}

// SyncData carries the resolved catalog identifiers of a successful sync
type SyncData struct {
	Title     string `json:"title"`
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
	SubjectID string `json:"subject_id"`
	EpisodeID string `json:"episode_id"`
}

// SyncResponse is the outward-facing result of processing one SyncItem
type SyncResponse struct {
	Status  SyncStatus `json:"status"`
	Message string     `json:"message"`
	Data    *SyncData  `json:"data,omitempty"`
}

// Resolution is the outcome of matching a SyncItem against the catalog.
// SeasonSpecific is true when the matcher has high confidence that SubjectID
// already corresponds to the requested season, so sequel traversal can be
// skipped.
type Resolution struct {
	SubjectID      string
	MatchedTitle   string
	Via            MatchedVia
	SeasonSpecific bool
}
