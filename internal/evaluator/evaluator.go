package evaluator

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/oddsmath"
)

// Two lines are the same line when they differ by no more than this
const lineTolerance = 0.01

// Evaluate matches target prices against the reference full-game fair prices.
// Evaluations with implausible EV are dropped. Reference odds must already be normalized.
//
// Markets are evaluated independently; a spread and its mirror can both show positive EV.
func Evaluate(ref *models.ReferenceOdds, target *models.ParsedGame) []models.MarketEvaluation {
	if ref == nil || target == nil {
		return nil
	}
	period := ref.FullGame()
	if period == nil {
		return nil
	}

	var out []models.MarketEvaluation
	out = append(out, evaluateMoneyline(period.MoneyLine, target)...)
	out = append(out, evaluateSpreads(period.Spreads, target)...)
	out = append(out, evaluateTotals(period.Totals, target)...)

	return out
}

// HasPositiveEV reports whether any market shows positive EV
func HasPositiveEV(markets []models.MarketEvaluation) bool {
	for _, m := range markets {
		if m.EV > 0 {
			return true
		}
	}
	return false
}

func evaluateMoneyline(ml *models.MoneyLine, target *models.ParsedGame) []models.MarketEvaluation {
	if ml == nil {
		return nil
	}

	sides := []struct {
		sel    models.Selection
		target string
		fair   *float64
	}{
		{models.SelectionHome, target.HomeMoneyline, ml.NVPHome},
		{models.SelectionAway, target.AwayMoneyline, ml.NVPAway},
		{models.SelectionDraw, target.DrawMoneyline, ml.NVPDraw},
	}

	var out []models.MarketEvaluation
	for _, s := range sides {
		if e, ok := evaluate(models.MarketMoneyline, s.sel, nil, s.target, s.fair); ok {
			out = append(out, e)
		}
	}
	return out
}

func evaluateSpreads(spreads map[string]*models.SpreadPrice, target *models.ParsedGame) []models.MarketEvaluation {
	var out []models.MarketEvaluation

	for _, sp := range sortedSpreads(spreads) {
		hdp := *sp.HDP

		for _, q := range target.HomeSpreads {
			if !sameLine(q.Line, hdp) {
				continue
			}
			if e, ok := evaluate(models.MarketSpread, models.SelectionHome, models.Float(hdp), q.Odds, sp.NVPHome); ok {
				out = append(out, e)
			}
		}

		for _, q := range target.AwaySpreads {
			if !sameLine(q.Line, -hdp) {
				continue
			}
			if e, ok := evaluate(models.MarketSpread, models.SelectionAway, models.Float(-hdp), q.Odds, sp.NVPAway); ok {
				out = append(out, e)
			}
		}
	}

	return out
}

// evaluateTotals keeps only the best Over and best Under across matching lines
func evaluateTotals(totals map[string]*models.TotalPrice, target *models.ParsedGame) []models.MarketEvaluation {
	line := NormalizeTotalLine(target.GameTotalLine)
	if line == nil {
		return nil
	}

	var bestOver, bestUnder *models.MarketEvaluation
	for _, tot := range sortedTotals(totals) {
		points := *tot.Points
		if !sameLine(*line, points) {
			continue
		}

		if e, ok := evaluate(models.MarketTotal, models.SelectionOver, models.Float(points), target.GameTotalOver, tot.NVPOver); ok {
			if bestOver == nil || e.EV > bestOver.EV {
				bestOver = &e
			}
		}
		if e, ok := evaluate(models.MarketTotal, models.SelectionUnder, models.Float(points), target.GameTotalUnder, tot.NVPUnder); ok {
			if bestUnder == nil || e.EV > bestUnder.EV {
				bestUnder = &e
			}
		}
	}

	var out []models.MarketEvaluation
	if bestOver != nil {
		out = append(out, *bestOver)
	}
	if bestUnder != nil {
		out = append(out, *bestUnder)
	}
	return out
}

// evaluate computes one selection's EV; ok is false when inputs are missing or EV is implausible
func evaluate(market models.MarketType, sel models.Selection, line *float64, targetOdds string, fair *float64) (models.MarketEvaluation, bool) {
	if targetOdds == "" || fair == nil {
		return models.MarketEvaluation{}, false
	}

	american, err := oddsmath.ParseAmerican(targetOdds)
	if err != nil {
		return models.MarketEvaluation{}, false
	}
	bet, err := oddsmath.AmericanToDecimal(american)
	if err != nil {
		return models.MarketEvaluation{}, false
	}

	ev := oddsmath.ExpectedValue(bet, *fair)
	if !oddsmath.IsPlausibleEV(ev) {
		return models.MarketEvaluation{}, false
	}

	e, err := models.NewMarketEvaluation(market, sel, line, oddsmath.NewPrice(*fair), oddsmath.FormatAmerican(american), ev)
	if err != nil {
		return models.MarketEvaluation{}, false
	}
	return e, true
}

// NormalizeTotalLine parses a total line as displayed by a book.
// "2½" → 2.5, "2.5,3" → 2.75 (Asian split line), "" → nil
func NormalizeTotalLine(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "½", ".5")
	s = strings.ReplaceAll(s, " ", "")

	for _, sep := range []string{",", "/"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			a, errA := strconv.ParseFloat(parts[0], 64)
			b, errB := strconv.ParseFloat(parts[1], 64)
			if errA == nil && errB == nil {
				v := (a + b) / 2
				return &v
			}
			return nil
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func sameLine(a, b float64) bool {
	return math.Abs(a-b) <= lineTolerance
}

func sortedSpreads(spreads map[string]*models.SpreadPrice) []*models.SpreadPrice {
	out := make([]*models.SpreadPrice, 0, len(spreads))
	for _, sp := range spreads {
		if sp != nil && sp.HDP != nil {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].HDP < *out[j].HDP })
	return out
}

func sortedTotals(totals map[string]*models.TotalPrice) []*models.TotalPrice {
	out := make([]*models.TotalPrice, 0, len(totals))
	for _, t := range totals {
		if t != nil && t.Points != nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Points < *out[j].Points })
	return out
}
