package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Markers that turn a team name into a prop market
var propKeywords = []string{"(Corners)", "(Bookings)", "(Hits+Runs+Errors)"}

// Markers for partial-game or prop lines on the target book.
// They only count as whole words, so "Shrewsbury" is not an "hre" line.
var partialGameIndicators = wordPatterns(
	"1H", "1st Half", "First Half",
	"1st 5 Innings", "First Five Innings",
	"1st Period", "2nd Period", "3rd Period",
	"hits+runs+errors", "h+r+e", "hre",
	"corners", "series",
)

// Filter applies the ingress fast-path checks to alerts
type Filter struct {
	keywords []string
}

// NewFilter creates a new filter with the default prop keywords
func NewFilter() *Filter {
	return &Filter{keywords: propKeywords}
}

// ShouldAccept returns true if the alert is for a supported full-game market.
// The reason is empty when the alert is accepted.
func (f *Filter) ShouldAccept(alert models.Alert) (bool, string) {
	for _, team := range []string{alert.HomeTeam, alert.AwayTeam} {
		if kw := matchAny(team, f.keywords); kw != "" {
			return false, fmt.Sprintf("prop alert %s not supported", kw)
		}
	}
	return true, ""
}

// IsPropAlert reports whether either team name carries a prop marker
func IsPropAlert(home, away string) bool {
	return matchAny(home, propKeywords) != "" || matchAny(away, propKeywords) != ""
}

// IsPartialGame reports whether a target-book team label denotes a
// half, period, innings or prop line instead of the full game.
func IsPartialGame(label string) bool {
	for _, re := range partialGameIndicators {
		if re.MatchString(label) {
			return true
		}
	}
	return false
}

// wordPatterns compiles case-insensitive matchers bounded by non-alphanumerics
func wordPatterns(markers ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		out = append(out, regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])`+regexp.QuoteMeta(m)+`(?:$|[^\p{L}\p{N}])`))
	}
	return out
}

// matchAny returns the first keyword contained in s, case-insensitively
func matchAny(s string, keywords []string) string {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
