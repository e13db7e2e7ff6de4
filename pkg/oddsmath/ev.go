package oddsmath

import (
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
	"github.com/shopspring/decimal"
)

// Plausible EV band. Results outside it come from stale or mismatched data,
// not genuine opportunities.
const (
	MinPlausibleEV = -0.50
	MaxPlausibleEV = 0.20
)

// ExpectedValue calculates the fractional edge of a bet price over its fair price
// EV = betDecimal / fairDecimal - 1
//
// Example:
// Bet 2.10, Fair 2.00 → 0.05 (5% EV)
//
// Returns 0 when either price is not positive.
func ExpectedValue(betDecimal, fairDecimal float64) float64 {
	if betDecimal <= 0 || fairDecimal <= 0 {
		return 0
	}
	return betDecimal/fairDecimal - 1
}

// IsPlausibleEV reports whether an EV falls inside the sanity band
func IsPlausibleEV(ev float64) bool {
	return ev > MinPlausibleEV && ev < MaxPlausibleEV
}

// NewPrice builds a decimal price with its American display form
func NewPrice(decimalPrice float64) models.Price {
	return models.Price{
		Decimal:  decimal.NewFromFloat(decimalPrice).Round(3),
		American: DecimalToAmericanString(decimalPrice),
	}
}
