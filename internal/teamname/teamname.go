// Package teamname normalizes sportsbook team names for matching and searching.
package teamname

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	leadingDigits = regexp.MustCompile(`^\d+\s*`)
	parenthesized = regexp.MustCompile(`\s*\([^)]*\)`)
	edgePunct     = regexp.MustCompile(`^[^\p{L}\p{N}]+|[^\p{L}\p{N}]+$`)
	innerPunct    = regexp.MustCompile(`[^\p{L}\p{N}\s.\-+]`)
)

// Club prefixes that books attach inconsistently
var clubPrefixes = []string{
	"if ", "fc ", "sc ", "bk ", "sk ", "ac ", "as ", "fk ", "cd ", "ca ", "afc ", "cfr ", "kc ", "scr ",
}

// Words too generic to search on
var genericWords = map[string]bool{
	"fc": true, "sc": true, "united": true, "city": true, "club": true, "de": true, "do": true,
	"ac": true, "if": true, "bk": true, "aif": true, "kc": true, "sr": true, "mg": true, "us": true, "br": true,
}

// Normalize lowercases a team name, folds accents and strips book-specific noise
// "1 FC Köln (Corners)" → "koln"
func Normalize(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(name))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = leadingDigits.ReplaceAllString(s, "")
	s = parenthesized.ReplaceAllString(s, "")
	s = strings.TrimSpace(edgePunct.ReplaceAllString(s, ""))

	// Strip twice: "fc sc x" style double prefixes occur
	for i := 0; i < 2; i++ {
		for _, prefix := range clubPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
			}
		}
	}

	s = edgePunct.ReplaceAllString(s, "")
	s = innerPunct.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return strings.ToLower(strings.TrimSpace(name))
	}
	return s
}

// SearchTerm picks the term submitted to the target book's search box.
// Prefers the home team's last significant word, then its first word.
func SearchTerm(homeTeam, awayTeam string) string {
	home := Normalize(homeTeam)
	parts := strings.Fields(home)

	switch {
	case len(parts) > 1 && len(parts[len(parts)-1]) > 3 && !genericWords[parts[len(parts)-1]]:
		return parts[len(parts)-1]
	case len(parts) > 0 && len(parts[0]) > 2 && !genericWords[parts[0]]:
		return parts[0]
	case home != "":
		return home
	default:
		return Normalize(awayTeam)
	}
}
