package bangumi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Collection states on bangumi.tv
const (
	CollectionWish    = 1
	CollectionDone    = 2
	CollectionDoing   = 3
	CollectionOnHold  = 4
	CollectionDropped = 5
)

// EpisodeStateWatched is the per-episode "watched" collection type
const EpisodeStateWatched = 2

// Subject represents a bangumi subject (one work or one season/cour)
type Subject struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	NameCN        string `json:"name_cn"`
	Platform      string `json:"platform"`
	Eps           int    `json:"eps"`
	TotalEpisodes int    `json:"total_episodes"`
	Date          string `json:"date"`
}

// RelatedSubject is a relation edge from one subject to another
type RelatedSubject struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	NameCN   string `json:"name_cn"`
	Relation string `json:"relation"`
}

// Episode belongs to exactly one subject. Sort is the absolute sequence
// number in bangumi's numbering; Ep is the in-season number and may diverge
// from Sort. Both are float-valued in the remote API (e.g. episode 23.5).
type Episode struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Sort float64 `json:"sort"`
	Ep   float64 `json:"ep"`
	Type int     `json:"type"`
}

// Episodes is the paged episode listing of one subject
type Episodes struct {
	Data  []Episode `json:"data"`
	Total int       `json:"total"`
}

// SearchSubject is one search result entry
type SearchSubject struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	NameCN string `json:"name_cn"`
	Date   string `json:"date"`
}

// Collection is a user's per-subject collection state
type Collection struct {
	SubjectID int `json:"subject_id"`
	Type      int `json:"type"`
	EpStatus  int `json:"ep_status"`
}

// EpisodeCollection is a user's per-episode state
type EpisodeCollection struct {
	Episode Episode `json:"episode"`
	Type    int     `json:"type"`
}

// GetMe verifies the access token by fetching the authenticated user
func (c *Client) GetMe(ctx context.Context) error {
	_, err := c.get(ctx, "me", nil)
	if err != nil {
		return fmt.Errorf("failed to verify bangumi credentials: %w", err)
	}
	return nil
}

// GetSubject retrieves a subject by id (memoized per client instance)
func (c *Client) GetSubject(ctx context.Context, subjectID string) (*Subject, error) {
	body, err := c.getCached(ctx, "subjects/"+subjectID, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subject %s: %w", subjectID, err)
	}

	var subject Subject
	if err := json.Unmarshal(body, &subject); err != nil {
		return nil, fmt.Errorf("failed to decode subject %s: %w", subjectID, err)
	}
	return &subject, nil
}

// GetRelatedSubjects retrieves the relation edges of a subject (memoized)
func (c *Client) GetRelatedSubjects(ctx context.Context, subjectID string) ([]RelatedSubject, error) {
	body, err := c.getCached(ctx, "subjects/"+subjectID+"/subjects", nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get related subjects of %s: %w", subjectID, err)
	}

	var related []RelatedSubject
	if err := json.Unmarshal(body, &related); err != nil {
		return nil, fmt.Errorf("failed to decode related subjects of %s: %w", subjectID, err)
	}
	return related, nil
}

// GetEpisodes retrieves the episodes of a subject (memoized)
func (c *Client) GetEpisodes(ctx context.Context, subjectID string, epType int) (*Episodes, error) {
	params := url.Values{}
	params.Set("subject_id", subjectID)
	params.Set("type", strconv.Itoa(epType))

	body, err := c.getCached(ctx, "episodes", params)
	if err != nil {
		if IsNotFound(err) {
			return &Episodes{}, nil
		}
		return nil, fmt.Errorf("failed to get episodes of %s: %w", subjectID, err)
	}

	var episodes Episodes
	if err := json.Unmarshal(body, &episodes); err != nil {
		return nil, fmt.Errorf("failed to decode episodes of %s: %w", subjectID, err)
	}
	return &episodes, nil
}

// GetSubjectCollection retrieves the user's collection state for a subject.
// Returns nil when the subject is not collected.
func (c *Client) GetSubjectCollection(ctx context.Context, subjectID string) (*Collection, error) {
	body, err := c.get(ctx, "users/"+c.username+"/collections/"+subjectID, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection of subject %s: %w", subjectID, err)
	}

	var collection Collection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("failed to decode collection of subject %s: %w", subjectID, err)
	}
	return &collection, nil
}

// GetEpisodeCollection retrieves the user's state for a single episode.
// Returns nil when there is no state yet.
func (c *Client) GetEpisodeCollection(ctx context.Context, episodeID string) (*EpisodeCollection, error) {
	body, err := c.get(ctx, "users/-/collections/-/episodes/"+episodeID, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collection of episode %s: %w", episodeID, err)
	}

	var epCollection EpisodeCollection
	if err := json.Unmarshal(body, &epCollection); err != nil {
		return nil, fmt.Errorf("failed to decode collection of episode %s: %w", episodeID, err)
	}
	return &epCollection, nil
}

// AddCollection adds a subject to the user's collection in the given state
func (c *Client) AddCollection(ctx context.Context, subjectID string, state int) error {
	_, err := c.post(ctx, "users/-/collections/"+subjectID,
		map[string]interface{}{"type": state, "private": c.private}, nil, true)
	if err != nil {
		return fmt.Errorf("failed to add subject %s to collection: %w", subjectID, err)
	}
	return nil
}

// SetCollectionState changes the user's collection state of a subject
func (c *Client) SetCollectionState(ctx context.Context, subjectID string, state int) error {
	_, err := c.post(ctx, "users/-/collections/"+subjectID,
		map[string]interface{}{"type": state, "private": c.private}, nil, true)
	if err != nil {
		return fmt.Errorf("failed to set collection state of subject %s: %w", subjectID, err)
	}
	return nil
}

// SetEpisodeState changes the user's state of a single episode
func (c *Client) SetEpisodeState(ctx context.Context, episodeID string, state int) error {
	_, err := c.put(ctx, "users/-/collections/-/episodes/"+episodeID,
		map[string]interface{}{"type": state})
	if err != nil {
		return fmt.Errorf("failed to set state of episode %s: %w", episodeID, err)
	}
	return nil
}
