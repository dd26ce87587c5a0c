package utils

import "strings"

// Blocklist holds keywords used to skip syncing unwanted titles
type Blocklist struct {
	terms []string
}

// NewBlocklist creates a blocklist from configured keywords
func NewBlocklist(terms []string) *Blocklist {
	return &Blocklist{terms: terms}
}

// IsBlocked checks if any of the given titles matches a blocklist term
// Returns (isBlocked, matchedTerm)
func (b *Blocklist) IsBlocked(titles ...string) (bool, string) {
	for _, term := range b.terms {
		termLower := strings.ToLower(term)
		for _, title := range titles {
			if title == "" {
				continue
			}
			if strings.Contains(strings.ToLower(title), termLower) {
				return true, term
			}
		}
	}

	return false, ""
}
