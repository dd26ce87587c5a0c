package dataset

import (
	"fmt"
	"regexp"
	"strings"
)

// seasonMarkerPatterns strip season/part suffixes from a query title so the
// base series title can be matched against the dataset. Applied in order.
var seasonMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*第?\s*\d+\s*期?[話话集]?$`),
	regexp.MustCompile(`(?i)\s*Season\s*\d+$`),
	regexp.MustCompile(`(?i)\s*S\d+$`),
	regexp.MustCompile(`\s*\d+$`),
	regexp.MustCompile(`\s*II+$`), // roman-numeral sequels: II, III, ...
	regexp.MustCompile(`\s*第?\s*\d+\s*[期季]$`),
}

var chineseNumbers = map[int]string{
	1: "一", 2: "二", 3: "三", 4: "四", 5: "五",
	6: "六", 7: "七", 8: "八", 9: "九", 10: "十",
}

var partIndicators = []string{`\s+上半`, `\s+下半`, `\s+第2部分`, `\s+第二部分`}

// StripSeasonMarkers removes trailing season markers ("第2季", "Season 2",
// "S2", bare digits, roman numerals) from a title
func StripSeasonMarkers(title string) string {
	stripped := title
	for _, pattern := range seasonMarkerPatterns {
		stripped = pattern.ReplaceAllString(stripped, "")
	}
	return stripped
}

// TitleHasSeasonInfo reports whether a title carries an explicit marker for
// the given season number, in numeric, Chinese-numeral or part form
func TitleHasSeasonInfo(title string, season int) bool {
	keywords := []string{
		fmt.Sprintf("第%d季", season), fmt.Sprintf("第%d期", season),
		fmt.Sprintf("%d期", season), fmt.Sprintf("%d季", season),
		fmt.Sprintf("Season %d", season), fmt.Sprintf("S%d", season),
	}

	chineseNum := chineseNumbers[season]
	if chineseNum != "" {
		keywords = append(keywords,
			"第"+chineseNum+"季", "第"+chineseNum+"期",
			chineseNum+"期", chineseNum+"季")
	}

	for _, keyword := range keywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}

	// Split seasons: "第2季 上半", "二季 第2部分" and friends
	basePatterns := []string{
		fmt.Sprintf("第%d季", season),
		fmt.Sprintf("%d季", season),
	}
	if chineseNum != "" {
		basePatterns = append(basePatterns, "第"+chineseNum+"季", chineseNum+"季")
	}

	for _, base := range basePatterns {
		for _, indicator := range partIndicators {
			if matched, _ := regexp.MatchString(regexp.QuoteMeta(base)+indicator, title); matched {
				return true
			}
		}
	}

	return false
}
