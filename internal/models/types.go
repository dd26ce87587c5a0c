package models

// SyncStatus represents the outward-facing outcome of a sync request
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusIgnored SyncStatus = "ignored"
	StatusError   SyncStatus = "error"
)

// Source represents which media server produced a sync request
type Source string

const (
	SourcePlex     Source = "plex"
	SourceEmby     Source = "emby"
	SourceJellyfin Source = "jellyfin"
	SourceCustom   Source = "custom"
)

// MatchedVia records which matching strategy produced a resolution
type MatchedVia string

const (
	ViaCustomMapping MatchedVia = "custom_mapping"
	ViaDatasetExact  MatchedVia = "dataset_exact"
	ViaDatasetDate   MatchedVia = "dataset_date_disambiguated"
	ViaDatasetFuzzy  MatchedVia = "dataset_fuzzy"
	ViaCatalogSearch MatchedVia = "catalog_search"
)

// TaskState represents the lifecycle of a queued sync task
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)
