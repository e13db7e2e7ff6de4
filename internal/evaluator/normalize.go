// Package evaluator turns reference and target book prices into per-market EV.
package evaluator

import (
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/oddsmath"
)

// Normalize augments reference odds with no-vig fair prices and American display fields.
// Source decimal prices are left untouched.
func Normalize(ref *models.ReferenceOdds) {
	if ref == nil {
		return
	}

	for _, period := range ref.Periods {
		if period == nil {
			continue
		}

		if ml := period.MoneyLine; ml != nil {
			fair := oddsmath.NoVigFairPrices([]*float64{ml.Home, ml.Draw, ml.Away})
			ml.NVPHome, ml.NVPDraw, ml.NVPAway = fair[0], fair[1], fair[2]

			ml.AmericanHome = american(ml.Home)
			ml.AmericanDraw = american(ml.Draw)
			ml.AmericanAway = american(ml.Away)
			ml.NVPAmericanHome = american(ml.NVPHome)
			ml.NVPAmericanDraw = american(ml.NVPDraw)
			ml.NVPAmericanAway = american(ml.NVPAway)
		}

		for _, sp := range period.Spreads {
			if sp == nil {
				continue
			}
			fair := oddsmath.NoVigFairPrices([]*float64{sp.Home, sp.Away})
			sp.NVPHome, sp.NVPAway = fair[0], fair[1]

			sp.AmericanHome = american(sp.Home)
			sp.AmericanAway = american(sp.Away)
			sp.NVPAmericanHome = american(sp.NVPHome)
			sp.NVPAmericanAway = american(sp.NVPAway)
		}

		for _, tot := range period.Totals {
			if tot == nil {
				continue
			}
			fair := oddsmath.NoVigFairPrices([]*float64{tot.Over, tot.Under})
			tot.NVPOver, tot.NVPUnder = fair[0], fair[1]

			tot.AmericanOver = american(tot.Over)
			tot.AmericanUnder = american(tot.Under)
			tot.NVPAmericanOver = american(tot.NVPOver)
			tot.NVPAmericanUnder = american(tot.NVPUnder)
		}
	}
}

func american(price *float64) string {
	if price == nil {
		return ""
	}
	return oddsmath.DecimalToAmericanString(*price)
}
