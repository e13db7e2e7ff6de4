package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketType identifies the kind of market being evaluated
type MarketType string

const (
	MarketMoneyline MarketType = "Moneyline"
	MarketSpread    MarketType = "Spread"
	MarketTotal     MarketType = "Total"
)

// Selection identifies the side of a market
type Selection string

const (
	SelectionHome  Selection = "Home"
	SelectionAway  Selection = "Away"
	SelectionDraw  Selection = "Draw"
	SelectionOver  Selection = "Over"
	SelectionUnder Selection = "Under"
)

// Allows reports whether a selection belongs to this market type.
// Unknown market types allow nothing.
func (m MarketType) Allows(s Selection) bool {
	switch m {
	case MarketMoneyline:
		return s == SelectionHome || s == SelectionAway || s == SelectionDraw
	case MarketSpread:
		return s == SelectionHome || s == SelectionAway
	case MarketTotal:
		return s == SelectionOver || s == SelectionUnder
	default:
		return false
	}
}

// HasLine reports whether evaluations of this market carry a line
func (m MarketType) HasLine() bool {
	switch m {
	case MarketSpread, MarketTotal:
		return true
	default:
		return false
	}
}

// Price is a decimal price with its American display form
type Price struct {
	Decimal  decimal.Decimal `json:"decimal"`
	American string          `json:"american"`
}

// MarketEvaluation is the EV of one selection on the target book against the reference fair price
type MarketEvaluation struct {
	Market             MarketType `json:"market"`
	Selection          Selection  `json:"selection"`
	Line               *float64   `json:"line,omitempty"`
	ReferenceFairPrice Price      `json:"reference_fair_price"`
	TargetPrice        string     `json:"target_price"`
	EV                 float64    `json:"ev"`
	EVDisplay          string     `json:"ev_display"`
}

// NewMarketEvaluation builds an evaluation, rejecting selections that do not belong to the market
func NewMarketEvaluation(market MarketType, sel Selection, line *float64, fair Price, target string, ev float64) (MarketEvaluation, error) {
	if !market.Allows(sel) {
		return MarketEvaluation{}, fmt.Errorf("selection %s not valid for market %s", sel, market)
	}
	if market.HasLine() && line == nil {
		return MarketEvaluation{}, fmt.Errorf("market %s requires a line", market)
	}
	if !market.HasLine() {
		line = nil
	}

	return MarketEvaluation{
		Market:             market,
		Selection:          sel,
		Line:               cloneFloat(line),
		ReferenceFairPrice: fair,
		TargetPrice:        target,
		EV:                 ev,
		EVDisplay:          fmt.Sprintf("%.2f%%", ev*100),
	}, nil
}

// Key identifies the market/selection/line independent of prices
func (e MarketEvaluation) Key() string {
	if e.Line == nil {
		return fmt.Sprintf("%s|%s", e.Market, e.Selection)
	}
	return fmt.Sprintf("%s|%s|%g", e.Market, e.Selection, *e.Line)
}

// Equal compares two evaluations field by field
func (e MarketEvaluation) Equal(o MarketEvaluation) bool {
	if e.Key() != o.Key() {
		return false
	}
	return e.TargetPrice == o.TargetPrice &&
		e.ReferenceFairPrice.American == o.ReferenceFairPrice.American &&
		e.ReferenceFairPrice.Decimal.Equal(o.ReferenceFairPrice.Decimal) &&
		e.EVDisplay == o.EVDisplay
}

// MarketsEqual compares two evaluation lists in order
func MarketsEqual(a, b []MarketEvaluation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneMarkets returns a deep copy of an evaluation list
func CloneMarkets(in []MarketEvaluation) []MarketEvaluation {
	if in == nil {
		return nil
	}
	out := make([]MarketEvaluation, len(in))
	for i, m := range in {
		m.Line = cloneFloat(m.Line)
		out[i] = m
	}
	return out
}
