package bangumi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/amaumene/bangumarr/internal/utils"
)

const searchDateLayout = "2006-01-02"

// acceptRatio is the minimum composite title similarity for a search hit
const acceptRatio = 0.5

// Search queries the v0 search endpoint for TV subjects within an air-date
// window (memoized per client instance)
func (c *Client) Search(ctx context.Context, keyword, startDate, endDate string, limit int) ([]SearchSubject, error) {
	reqBody := map[string]interface{}{
		"keyword": keyword,
		"filter": map[string]interface{}{
			"type":     []int{2},
			"air_date": []string{">=" + startDate, "<" + endDate},
			"nsfw":     true,
		},
	}

	key := fmt.Sprintf("search:%s:%s:%s:%d", keyword, startDate, endDate, limit)
	if cached, found := c.respCache.Get(key); found {
		return cached.([]SearchSubject), nil
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.post(ctx, "search/subjects", reqBody, params, false)
	if err != nil {
		return nil, fmt.Errorf("search failed for %q: %w", keyword, err)
	}

	var resp struct {
		Data []SearchSubject `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response for %q: %w", keyword, err)
	}

	c.respCache.SetDefault(key, resp.Data)
	return resp.Data, nil
}

// SearchLegacy queries the legacy search endpoint (memoized per client
// instance). Used as a fallback when the v0 search scores poorly.
func (c *Client) SearchLegacy(ctx context.Context, title string) ([]SearchSubject, error) {
	key := "search_legacy:" + title
	if cached, found := c.respCache.Get(key); found {
		return cached.([]SearchSubject), nil
	}

	params := url.Values{}
	params.Set("type", "2")

	fullURL := buildURL(c.legacyURL, "search/subject/"+url.PathEscape(title), params)
	body, err := c.doRequest(ctx, "GET", fullURL, nil, true)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("legacy search failed for %q: %w", title, err)
	}

	var resp struct {
		Results int             `json:"results"`
		List    []SearchSubject `json:"list"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode legacy search response for %q: %w", title, err)
	}

	c.respCache.SetDefault(key, resp.List)
	return resp.List, nil
}

// SearchSubjectID resolves a subject id via catalog search: original title
// first, then display title, within a ±2 day air-date window around the
// premiere date (expanded to +200 days for movie-like items). When the best
// hit scores below the accept ratio the legacy endpoint is tried. Returns ""
// when nothing acceptable is found.
func (c *Client) SearchSubjectID(ctx context.Context, title, oriTitle, premiereDate string, movie bool) (string, error) {
	var results []SearchSubject

	if len(premiereDate) >= 10 {
		airDate, err := time.Parse(searchDateLayout, premiereDate[:10])
		if err != nil {
			return "", fmt.Errorf("invalid premiere date %q: %w", premiereDate, err)
		}
		startDate := airDate.AddDate(0, 0, -2).Format(searchDateLayout)
		endDate := airDate.AddDate(0, 0, 2).Format(searchDateLayout)

		if oriTitle != "" {
			results, err = c.Search(ctx, oriTitle, startDate, endDate, 5)
			if err != nil {
				return "", err
			}
		}
		if len(results) == 0 {
			results, err = c.Search(ctx, title, startDate, endDate, 5)
			if err != nil {
				return "", err
			}
		}
		if len(results) == 0 && movie {
			// Movie air dates drift far from their announcement window
			keyword := oriTitle
			if keyword == "" {
				keyword = title
			}
			endDate = airDate.AddDate(0, 0, 200).Format(searchDateLayout)
			results, err = c.Search(ctx, keyword, startDate, endDate, 5)
			if err != nil {
				return "", err
			}
		}
	}

	if len(results) > 0 && titleDiffRatio(title, oriTitle, results[0]) >= acceptRatio {
		return strconv.Itoa(results[0].ID), nil
	}

	// Fall back to the legacy endpoint when the windowed search found nothing
	// or its best hit looks wrong
	for _, keyword := range []string{oriTitle, title} {
		if keyword == "" {
			continue
		}
		legacy, err := c.SearchLegacy(ctx, keyword)
		if err != nil {
			return "", err
		}
		if len(legacy) > 0 && titleDiffRatio(title, oriTitle, legacy[0]) > acceptRatio {
			return strconv.Itoa(legacy[0].ID), nil
		}
	}

	return "", nil
}

// titleDiffRatio scores a search hit against the requested titles
func titleDiffRatio(title, oriTitle string, hit SearchSubject) float64 {
	if oriTitle == "" {
		oriTitle = title
	}

	ratio := utils.SimilarityRatio(hit.Name, oriTitle)
	if r := utils.SimilarityRatio(hit.NameCN, title); r > ratio {
		ratio = r
	}
	if r := utils.SimilarityRatio(hit.Name, title); r > ratio {
		ratio = r
	}
	return ratio
}
