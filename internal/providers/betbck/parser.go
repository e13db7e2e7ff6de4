package betbck

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/filter"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/teamname"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// searchResponse is the body returned by the search form
type searchResponse struct {
	Games []searchGame `json:"games"`
}

// searchGame is one listing; the local team is listed first
type searchGame struct {
	Local            string               `json:"local_team"`
	Visitor          string               `json:"visitor_team"`
	LocalMoneyline   string               `json:"local_moneyline"`
	VisitorMoneyline string               `json:"visitor_moneyline"`
	DrawMoneyline    string               `json:"draw_moneyline"`
	LocalSpreads     []models.SpreadQuote `json:"local_spreads"`
	VisitorSpreads   []models.SpreadQuote `json:"visitor_spreads"`
	TotalLine        string               `json:"total_line"`
	TotalOver        string               `json:"total_over"`
	TotalUnder       string               `json:"total_under"`
}

// JSONParser implements contracts.GameParser for the search response
type JSONParser struct{}

// NewJSONParser creates a new parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse returns the game best matching homeTeam and awayTeam.
// Exact normalized matches win over partial ones; either listing order is accepted.
func (p *JSONParser) Parse(body []byte, homeTeam, awayTeam string) (models.SearchOutcome, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SearchOutcome{}, fmt.Errorf("%w: %v", models.ErrMalformedUpstreamData, err)
	}

	home := teamname.Normalize(homeTeam)
	away := teamname.Normalize(awayTeam)
	if home == "" || away == "" {
		return models.NotFound(), nil
	}

	for _, match := range []func(a, b string) bool{exact, partial} {
		for _, g := range resp.Games {
			if g.Local == "" || g.Visitor == "" {
				continue
			}
			if filter.IsPartialGame(g.Local) || filter.IsPartialGame(g.Visitor) {
				continue
			}

			local := teamname.Normalize(g.Local)
			visitor := teamname.Normalize(g.Visitor)

			switch {
			case match(home, local) && match(away, visitor):
				return models.FoundGame(g.toParsed(false)), nil
			case match(home, visitor) && match(away, local):
				return models.FoundGame(g.toParsed(true)), nil
			}
		}
	}

	return models.NotFound(), nil
}

// toParsed maps the listing onto home/away; flipped means the local team is the away side
func (g searchGame) toParsed(flipped bool) *models.ParsedGame {
	pg := &models.ParsedGame{
		HomeTeam:       g.Local,
		AwayTeam:       g.Visitor,
		HomeMoneyline:  g.LocalMoneyline,
		AwayMoneyline:  g.VisitorMoneyline,
		DrawMoneyline:  g.DrawMoneyline,
		HomeSpreads:    append([]models.SpreadQuote(nil), g.LocalSpreads...),
		AwaySpreads:    append([]models.SpreadQuote(nil), g.VisitorSpreads...),
		GameTotalLine:  g.TotalLine,
		GameTotalOver:  g.TotalOver,
		GameTotalUnder: g.TotalUnder,
	}
	if flipped {
		pg.HomeTeam, pg.AwayTeam = pg.AwayTeam, pg.HomeTeam
		pg.HomeMoneyline, pg.AwayMoneyline = pg.AwayMoneyline, pg.HomeMoneyline
		pg.HomeSpreads, pg.AwaySpreads = pg.AwaySpreads, pg.HomeSpreads
	}
	return pg
}

func exact(a, b string) bool {
	return a == b
}

func partial(a, b string) bool {
	return b != "" && (strings.Contains(a, b) || strings.Contains(b, a))
}
