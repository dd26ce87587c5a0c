package dataset

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/utils"
)

const (
	// fuzzyCollectThreshold is the minimum score for a candidate to be
	// considered at all; fuzzyAcceptThreshold is the minimum for the best
	// candidate to win
	fuzzyCollectThreshold = 0.4
	fuzzyAcceptThreshold  = 0.6

	maxExactCandidates = 3
	maxFuzzyCandidates = 10
)

// Match tiers: an exact zh-Hans translation outranks native-title equality
const (
	tierZhHans = iota
	tierNative
)

const isoDateLayout = "2006-01-02"

// CatalogSearcher finds a subject id via the remote catalog's search API.
// It is the matcher's last-resort strategy and is passed per call because
// clients are created per resolution.
type CatalogSearcher interface {
	SearchSubjectID(ctx context.Context, title, oriTitle, premiereDate string, movie bool) (string, error)
}

// Matcher resolves a sync request to a bangumi subject id using a layered
// strategy: operator overrides, then the bangumi-data dataset (exact, then
// date-disambiguated, then fuzzy), then catalog search.
type Matcher struct {
	cache    *Cache
	mappings *MappingStore
	logger   *logrus.Logger
}

// NewMatcher creates a new title matcher
func NewMatcher(cache *Cache, mappings *MappingStore, logger *logrus.Logger) *Matcher {
	return &Matcher{
		cache:    cache,
		mappings: mappings,
		logger:   logger,
	}
}

// Find resolves the item's title to a subject id. A nil Resolution with a
// nil error means no strategy matched; errors are reserved for failures of
// the catalog search fallback.
func (m *Matcher) Find(ctx context.Context, item *models.SyncItem, searcher CatalogSearcher) (*models.Resolution, error) {
	title := utils.NormalizeTitle(item.Title)
	oriTitle := utils.NormalizeTitle(item.OriTitle)

	releaseDate := ""
	if len(item.ReleaseDate) >= 10 {
		releaseDate = item.ReleaseDate[:10]
	}

	// 1. Operator override map, exact key only, never season-specific
	if id := m.mappings.Lookup(title); id != "" {
		m.logger.WithFields(logrus.Fields{
			"title":      title,
			"subject_id": id,
		}).Debug("Matched custom mapping")
		return &models.Resolution{
			SubjectID:    id,
			MatchedTitle: title,
			Via:          models.ViaCustomMapping,
		}, nil
	}

	// 2. Dataset match; season markers are stripped from the query for
	// non-first seasons to recover the base series title
	searchTitle := title
	if item.Season > 1 {
		if stripped := StripSeasonMarkers(title); stripped != "" && stripped != title {
			m.logger.WithField("stripped_title", stripped).Debug("Stripped season markers from title")
			searchTitle = stripped
		}
	}

	items, err := m.cache.Items(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Dataset unavailable, degrading to catalog search only")
	} else {
		hit := m.matchDataset(items, searchTitle, oriTitle, releaseDate)
		if hit == nil && searchTitle != title {
			// The stripped title found nothing; retry with the original
			hit = m.matchDataset(items, title, oriTitle, releaseDate)
		}
		if hit != nil {
			seasonSpecific := item.Season == 1 ||
				hit.dateMatched ||
				TitleHasSeasonInfo(hit.matchedTitle, item.Season)

			m.logger.WithFields(logrus.Fields{
				"title":           title,
				"matched_title":   hit.matchedTitle,
				"subject_id":      hit.subjectID,
				"via":             hit.via,
				"season_specific": seasonSpecific,
			}).Info("Matched via dataset")

			return &models.Resolution{
				SubjectID:      hit.subjectID,
				MatchedTitle:   hit.matchedTitle,
				Via:            hit.via,
				SeasonSpecific: seasonSpecific,
			}, nil
		}
	}

	// 3. Catalog search fallback, never season-specific
	if searcher != nil {
		id, err := searcher.SearchSubjectID(ctx, title, oriTitle, releaseDate, item.MediaType == "movie")
		if err != nil {
			return nil, err
		}
		if id != "" {
			m.logger.WithFields(logrus.Fields{
				"title":      title,
				"subject_id": id,
			}).Info("Matched via catalog search")
			return &models.Resolution{
				SubjectID:    id,
				MatchedTitle: title,
				Via:          models.ViaCatalogSearch,
			}, nil
		}
	}

	return nil, nil
}

// datasetHit is one accepted dataset match
type datasetHit struct {
	subjectID    string
	matchedTitle string
	via          models.MatchedVia
	dateMatched  bool
}

// matchDataset runs a single pass over the dataset, collecting exact and
// fuzzy candidates, and picks the winner
func (m *Matcher) matchDataset(items []Item, title, oriTitle, releaseDate string) *datasetHit {
	type exactCand struct {
		item *Item
		id   string
		tier int
	}
	type fuzzyCand struct {
		item  *Item
		id    string
		score float64
	}

	var exacts []exactCand
	var fuzzies []fuzzyCand

	for i := range items {
		item := &items[i]

		// Fast pre-filter: a Chinese query title needs a zh-Hans translation
		if title != "" && len(item.ZhHansTitles()) == 0 {
			continue
		}

		info := calculateMatchInfo(item, title, oriTitle, releaseDate)

		if info.exact {
			id := item.BangumiID()
			if id == "" {
				continue
			}
			exacts = append(exacts, exactCand{item: item, id: id, tier: info.tier})
			// Without a release date there is nothing to disambiguate with
			if releaseDate == "" || len(exacts) >= maxExactCandidates {
				break
			}
		} else if info.score > fuzzyCollectThreshold {
			id := item.BangumiID()
			if id == "" {
				continue
			}
			fuzzies = append(fuzzies, fuzzyCand{item: item, id: id, score: info.score})
			if len(fuzzies) >= maxFuzzyCandidates {
				break
			}
		}
	}

	if len(exacts) > 0 {
		sort.SliceStable(exacts, func(i, j int) bool { return exacts[i].tier < exacts[j].tier })

		if releaseDate != "" && len(exacts) > 1 {
			topTier := exacts[0].tier
			var sameTier []exactCand
			for _, c := range exacts {
				if c.tier == topTier {
					sameTier = append(sameTier, c)
				}
			}

			if len(sameTier) > 1 {
				best := sameTier[0]
				bestDiff := dateDiffDays(best.item.Begin, releaseDate)
				for _, c := range sameTier[1:] {
					if diff := dateDiffDays(c.item.Begin, releaseDate); diff < bestDiff {
						best, bestDiff = c, diff
					}
				}
				m.logger.WithFields(logrus.Fields{
					"candidates": len(sameTier),
					"date_diff":  bestDiff,
				}).Debug("Disambiguated exact matches by air date")
				return &datasetHit{
					subjectID:    best.id,
					matchedTitle: best.item.BestTitle(),
					via:          models.ViaDatasetDate,
					dateMatched:  true,
				}
			}
		}

		return &datasetHit{
			subjectID:    exacts[0].id,
			matchedTitle: exacts[0].item.BestTitle(),
			via:          models.ViaDatasetExact,
		}
	}

	if len(fuzzies) > 0 {
		sort.SliceStable(fuzzies, func(i, j int) bool { return fuzzies[i].score > fuzzies[j].score })
		if fuzzies[0].score >= fuzzyAcceptThreshold {
			return &datasetHit{
				subjectID:    fuzzies[0].id,
				matchedTitle: fuzzies[0].item.BestTitle(),
				via:          models.ViaDatasetFuzzy,
			}
		}
	}

	return nil
}

// matchInfo is the per-item match record, computed once per dataset pass
type matchInfo struct {
	exact bool
	tier  int
	score float64
}

// calculateMatchInfo computes the exact-match flag, its tier and the fuzzy
// score for one dataset item in a single pass
func calculateMatchInfo(item *Item, title, oriTitle, releaseDate string) matchInfo {
	bestZhScore := 0.0
	bestZhTitle := ""

	if title != "" {
		for _, zh := range item.ZhHansTitles() {
			if title == zh {
				return matchInfo{exact: true, tier: tierZhHans, score: 1.0}
			}
			sim := utils.SimilarityRatio(zh, title)
			if sim > bestZhScore {
				bestZhScore, bestZhTitle = sim, zh
			}
			// Near-identical translations (punctuation variants) count as exact
			if sim > 0.9 {
				return matchInfo{exact: true, tier: tierZhHans, score: sim}
			}
		}
	}

	if oriTitle != "" && item.Title == oriTitle {
		return matchInfo{exact: true, tier: tierNative, score: 1.0}
	}
	if oriTitle == "" && title != "" && item.Title == title {
		return matchInfo{exact: true, tier: tierNative, score: 1.0}
	}

	// Fuzzy score: weighted blend of translated-title similarity, containment
	// bonuses, native-title similarity and air-date proximity
	score := 0.0

	if bestZhScore > 0 {
		for _, zh := range item.ZhHansTitles() {
			if utils.ContainsEither(title, zh) {
				score += 0.15
				break
			}
		}
		if bestZhScore > 0.8 {
			score += 0.2
		}
		if utils.KeyCharactersMatch(title, bestZhTitle) {
			score += 0.1
		}
		score += bestZhScore * 0.6
	}

	if oriTitle != "" {
		score += utils.SimilarityRatio(item.Title, oriTitle) * 0.3
		if utils.ContainsEither(oriTitle, item.Title) {
			score += 0.1
		}
	} else if title != "" {
		score += utils.SimilarityRatio(item.Title, title) * 0.2
		if utils.ContainsEither(title, item.Title) {
			score += 0.1
		}
	}

	if releaseDate != "" && item.Begin != "" {
		diff := dateDiffDays(item.Begin, releaseDate)
		if diff <= 30 {
			score += 0.15
		} else if diff <= 120 {
			score += 0.05
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return matchInfo{score: score}
}

// dateDiffDays returns the absolute day difference between two ISO dates.
// Unparseable dates yield a huge distance so they never win a tie-break.
func dateDiffDays(a, b string) int {
	const unparseable = 999999

	ta, err := parseISODate(a)
	if err != nil {
		return unparseable
	}
	tb, err := parseISODate(b)
	if err != nil {
		return unparseable
	}

	diff := int(ta.Sub(tb).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func parseISODate(s string) (time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return time.Parse(isoDateLayout, s)
}
