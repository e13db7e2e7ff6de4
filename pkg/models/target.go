package models

// SpreadQuote is a single spread line offered by the target book
type SpreadQuote struct {
	Line float64 `json:"line"`
	Odds string  `json:"odds"`
}

// ParsedGame is the target book's prices for one game, as scraped.
// Odds are American strings exactly as displayed by the book.
type ParsedGame struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`

	HomeMoneyline string `json:"home_moneyline_american,omitempty"`
	AwayMoneyline string `json:"away_moneyline_american,omitempty"`
	DrawMoneyline string `json:"draw_moneyline_american,omitempty"`

	HomeSpreads []SpreadQuote `json:"home_spreads,omitempty"`
	AwaySpreads []SpreadQuote `json:"away_spreads,omitempty"`

	// GameTotalLine may be an Asian line such as "2.5,3"
	GameTotalLine  string `json:"game_total_line,omitempty"`
	GameTotalOver  string `json:"game_total_over_odds,omitempty"`
	GameTotalUnder string `json:"game_total_under_odds,omitempty"`
}

// Clone returns a deep copy
func (g *ParsedGame) Clone() *ParsedGame {
	if g == nil {
		return nil
	}
	out := *g
	out.HomeSpreads = append([]SpreadQuote(nil), g.HomeSpreads...)
	out.AwaySpreads = append([]SpreadQuote(nil), g.AwaySpreads...)
	return &out
}

// SearchOutcome is the result of a target-book search.
// A miss is a normal outcome (Found=false), not an error.
type SearchOutcome struct {
	Found bool        `json:"found"`
	Game  *ParsedGame `json:"game,omitempty"`
}

// NotFound is the miss outcome
func NotFound() SearchOutcome {
	return SearchOutcome{}
}

// FoundGame wraps a matched game
func FoundGame(g *ParsedGame) SearchOutcome {
	return SearchOutcome{Found: true, Game: g}
}
