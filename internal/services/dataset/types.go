package dataset

// Item is one bangumi-data entry. Items are loaded in bulk and never mutated.
type Item struct {
	Title          string              `json:"title"`
	Type           string              `json:"type"`
	TitleTranslate map[string][]string `json:"titleTranslate"`
	Begin          string              `json:"begin"` // ISO date of first airing
	End            string              `json:"end"`
	Sites          []SiteRef           `json:"sites"`
}

// SiteRef is a cross-reference to one tracking site
type SiteRef struct {
	Site string `json:"site"`
	ID   string `json:"id"`
}

// BangumiID returns the bangumi subject id of the item, or "" when the item
// carries no bangumi cross-reference
func (i *Item) BangumiID() string {
	for _, site := range i.Sites {
		if site.Site == "bangumi" && site.ID != "" {
			return site.ID
		}
	}
	return ""
}

// ZhHansTitles returns the simplified-Chinese translations of the item
func (i *Item) ZhHansTitles() []string {
	if i.TitleTranslate == nil {
		return nil
	}
	return i.TitleTranslate["zh-Hans"]
}

// BestTitle returns the first simplified-Chinese translation, falling back
// to the native title
func (i *Item) BestTitle() string {
	if zh := i.ZhHansTitles(); len(zh) > 0 {
		return zh[0]
	}
	return i.Title
}
