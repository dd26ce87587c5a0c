package bangumi

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MarkResult describes what a MarkWatched call actually did
type MarkResult int

const (
	// AlreadyWatched means no write was needed
	AlreadyWatched MarkResult = iota
	// Marked means the episode was marked watched on an existing collection
	Marked
	// CollectedAndMarked means the subject was first added to the collection
	CollectedAndMarked
)

// collectionAPI is the collection surface the marker needs from the client
type collectionAPI interface {
	GetSubjectCollection(ctx context.Context, subjectID string) (*Collection, error)
	GetEpisodeCollection(ctx context.Context, episodeID string) (*EpisodeCollection, error)
	AddCollection(ctx context.Context, subjectID string, state int) error
	SetCollectionState(ctx context.Context, subjectID string, state int) error
	SetEpisodeState(ctx context.Context, episodeID string, state int) error
}

// Marker idempotently transitions a user's collection and episode state to
// watched
type Marker struct {
	api    collectionAPI
	logger *logrus.Logger
}

// NewMarker creates a new watch-state marker
func NewMarker(api collectionAPI, logger *logrus.Logger) *Marker {
	return &Marker{api: api, logger: logger}
}

// MarkWatched marks one episode watched. A subject that is not collected yet
// is added as in-progress first; a completed subject short-circuits without
// any write; want/on-hold subjects are promoted to in-progress before the
// episode state is checked.
func (m *Marker) MarkWatched(ctx context.Context, subjectID, episodeID string) (MarkResult, error) {
	collection, err := m.api.GetSubjectCollection(ctx, subjectID)
	if err != nil {
		return AlreadyWatched, err
	}

	if collection == nil {
		if err := m.api.AddCollection(ctx, subjectID, CollectionDoing); err != nil {
			return AlreadyWatched, err
		}
		if err := m.api.SetEpisodeState(ctx, episodeID, EpisodeStateWatched); err != nil {
			return AlreadyWatched, err
		}
		return CollectedAndMarked, nil
	}

	if collection.Type == CollectionDone {
		m.logger.WithField("subject_id", subjectID).Debug("Subject already completed, skipping")
		return AlreadyWatched, nil
	}

	if collection.Type == CollectionWish || collection.Type == CollectionOnHold {
		if err := m.api.SetCollectionState(ctx, subjectID, CollectionDoing); err != nil {
			return AlreadyWatched, err
		}
	}

	epCollection, err := m.api.GetEpisodeCollection(ctx, episodeID)
	if err != nil {
		return AlreadyWatched, err
	}
	if epCollection != nil && epCollection.Type == EpisodeStateWatched {
		m.logger.WithField("episode_id", episodeID).Debug("Episode already watched, skipping")
		return AlreadyWatched, nil
	}

	if err := m.api.SetEpisodeState(ctx, episodeID, EpisodeStateWatched); err != nil {
		return AlreadyWatched, err
	}
	return Marked, nil
}
