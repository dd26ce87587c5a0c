package models

import "time"

// SyncRecord is one persisted sync outcome
type SyncRecord struct {
	ID       uint64 `boltholdKey:"ID"`
	UserName string `boltholdIndex:"UserName"`

	Title    string
	OriTitle string
	Season   int
	Episode  int

	SubjectID string
	EpisodeID string

	Status  SyncStatus `boltholdIndex:"Status"`
	Message string
	Source  Source

	CreatedAt time.Time
}
