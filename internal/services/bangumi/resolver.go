package bangumi

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Traversal bounds. Seasons beyond 5 and episodes beyond 99 are rejected
// before any network call; the hop cap guards against relation cycles.
const (
	maxSeason  = 5
	maxEpisode = 99
	maxHops    = 20
)

// relationSequel is the only relation label the resolver consumes
const relationSequel = "续集"

// partTwoMarker identifies a split-cour continuation that is not a new season
const partTwoMarker = "第2部分"

// catalogBrowser is the read surface the resolver needs from the API client
type catalogBrowser interface {
	GetSubject(ctx context.Context, subjectID string) (*Subject, error)
	GetRelatedSubjects(ctx context.Context, subjectID string) ([]RelatedSubject, error)
	GetEpisodes(ctx context.Context, subjectID string, epType int) (*Episodes, error)
}

// Resolver walks sequel relation edges from a starting subject to locate the
// subject and episode matching a requested season and episode number.
//
// Bangumi has no authoritative season field, so season counting is a
// heuristic: a traversed subject is treated as a new season when it has more
// than 3 episodes and its first episode's sort is at most 1. Split cours and
// multi-part seasons can defeat this; callers should treat the result as
// best effort.
type Resolver struct {
	api    catalogBrowser
	logger *logrus.Logger
}

// NewResolver creates a new season/episode resolver
func NewResolver(api catalogBrowser, logger *logrus.Logger) *Resolver {
	return &Resolver{api: api, logger: logger}
}

// Resolve returns the (subjectID, episodeID) pair for the requested season
// and episode, or empty strings when no match exists. seasonSpecific marks
// the starting subject as already season-correct, skipping traversal when
// the episode matches directly.
func (r *Resolver) Resolve(ctx context.Context, subjectID string, season, episode int, seasonSpecific bool) (string, string, error) {
	if season > maxSeason || episode > maxEpisode || episode < 1 {
		r.logger.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"season":     season,
			"episode":    episode,
		}).Debug("Season or episode out of traversal bounds")
		return "", "", nil
	}

	if seasonSpecific {
		episodes, err := r.api.GetEpisodes(ctx, subjectID, 0)
		if err != nil {
			return "", "", err
		}
		if ep := matchEpisode(episodes.Data, episode); ep != nil {
			return subjectID, strconv.Itoa(ep.ID), nil
		}
		// The matcher was confident but the episode is not here; fall back
		// to the general traversal
		r.logger.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"episode":    episode,
		}).Debug("No episode match on season-specific subject, falling back to traversal")
	}

	if season == 1 {
		return r.resolveFirstSeason(ctx, subjectID, episode)
	}
	return r.resolveLaterSeason(ctx, subjectID, season, episode)
}

// resolveFirstSeason scans the starting subject and its sequels until the
// episode is found or the series moves past season 1
func (r *Resolver) resolveFirstSeason(ctx context.Context, subjectID string, episode int) (string, string, error) {
	current := subjectID
	first := true

	for hops := 0; hops <= maxHops; hops++ {
		if !first {
			subject, err := r.api.GetSubject(ctx, current)
			if err != nil {
				return "", "", err
			}
			if subject == nil || subject.Platform != "TV" {
				// OVAs, movies and specials sit on the sequel chain but do
				// not count as seasons
				next, err := r.nextSequel(ctx, current)
				if err != nil {
					return "", "", err
				}
				if next == "" {
					break
				}
				current = next
				continue
			}
		}

		episodes, err := r.api.GetEpisodes(ctx, current, 0)
		if err != nil {
			return "", "", err
		}
		if len(episodes.Data) == 0 {
			break
		}

		if ep := matchEpisode(episodes.Data, episode); ep != nil {
			return current, strconv.Itoa(ep.ID), nil
		}

		// A later subject that looks like a full season means the series has
		// moved past season 1 without this episode existing
		if !first && isNormalSeasonStart(episodes) {
			break
		}

		next, err := r.nextSequel(ctx, current)
		if err != nil {
			return "", "", err
		}
		if next == "" {
			break
		}
		current = next
		first = false
	}

	return "", "", nil
}

// resolveLaterSeason walks sequel edges counting season boundaries until the
// requested season is reached
func (r *Resolver) resolveLaterSeason(ctx context.Context, subjectID string, season, episode int) (string, string, error) {
	seasonNum := 1
	current := subjectID

	for hops := 0; hops <= maxHops; hops++ {
		next, err := r.nextSequel(ctx, current)
		if err != nil {
			return "", "", err
		}
		if next == "" {
			break
		}
		current = next

		subject, err := r.api.GetSubject(ctx, current)
		if err != nil {
			return "", "", err
		}
		if subject == nil || subject.Platform != "TV" {
			continue
		}

		episodes, err := r.api.GetEpisodes(ctx, current, 0)
		if err != nil {
			return "", "", err
		}
		if len(episodes.Data) == 0 {
			break
		}

		matched := findBySort(episodes.Data, episode)
		if matched == nil {
			matched = findByEp(episodes.Data, episode)
			// An ep-based match on a subject not named "part 2" means a
			// sequel was split without being counted as a new season
			if matched != nil && !strings.Contains(subject.NameCN, partTwoMarker) {
				seasonNum++
			}
		}

		if isNormalSeasonStart(episodes) {
			seasonNum++
		}

		if seasonNum > season {
			break
		}
		if seasonNum == season {
			if matched == nil {
				// The episode could still appear later in the same season
				continue
			}
			return current, strconv.Itoa(matched.ID), nil
		}
	}

	return "", "", nil
}

// nextSequel returns the first sequel relation of a subject, or "" when none
func (r *Resolver) nextSequel(ctx context.Context, subjectID string) (string, error) {
	related, err := r.api.GetRelatedSubjects(ctx, subjectID)
	if err != nil {
		return "", err
	}
	for _, rel := range related {
		if rel.Relation == relationSequel {
			return strconv.Itoa(rel.ID), nil
		}
	}
	return "", nil
}

// isNormalSeasonStart reports whether a subject looks like a distinct full
// season: more than 3 episodes and numbering restarting at (or below) 1
func isNormalSeasonStart(episodes *Episodes) bool {
	return episodes.Total > 3 && len(episodes.Data) > 0 && episodes.Data[0].Sort <= 1
}

// findBySort matches an episode by its absolute sort number
func findBySort(episodes []Episode, target int) *Episode {
	for i := range episodes {
		if episodes[i].Sort == float64(target) {
			return &episodes[i]
		}
	}
	return nil
}

// findByEp matches an episode by its in-season number, only when that number
// has not run ahead of the absolute sort
func findByEp(episodes []Episode, target int) *Episode {
	for i := range episodes {
		if episodes[i].Ep == float64(target) && episodes[i].Ep <= episodes[i].Sort {
			return &episodes[i]
		}
	}
	return nil
}

// matchEpisode matches by sort first, then by the ep/sort tie-break
func matchEpisode(episodes []Episode, target int) *Episode {
	if ep := findBySort(episodes, target); ep != nil {
		return ep
	}
	return findByEp(episodes, target)
}
