package oddsmath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmericanToDecimal converts American odds to decimal odds
// American +150 → Decimal 2.50
// American -150 → Decimal 1.67
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("invalid American odds: cannot be 0")
	}

	if american > 0 {
		return (float64(american) / 100.0) + 1.0, nil
	}

	return (100.0 / float64(-american)) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to American odds
// Decimal 2.50 → American +150
// Decimal 1.67 → American -150
func DecimalToAmerican(decimal float64) (int, error) {
	if decimal <= 1.0 || math.IsNaN(decimal) || math.IsInf(decimal, 0) {
		return 0, fmt.Errorf("invalid decimal odds %v: must be > 1.0", decimal)
	}

	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}

	return int(math.Round(-100.0 / (decimal - 1.0))), nil
}

// DecimalToImpliedProbability converts decimal odds to implied probability
// Decimal 2.00 → 0.50 (50%)
func DecimalToImpliedProbability(decimal float64) (float64, error) {
	if decimal <= 0 {
		return 0, fmt.Errorf("invalid decimal odds: must be > 0")
	}

	return 1.0 / decimal, nil
}

// ParseAmerican parses American odds as displayed by a sportsbook
// "+150" → 150, "-110" → -110, "EVEN" → 100
func ParseAmerican(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "":
		return 0, fmt.Errorf("invalid American odds: empty")
	case "EV", "EVEN", "EVS":
		return 100, nil
	}

	v, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, fmt.Errorf("invalid American odds %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid American odds: cannot be 0")
	}

	return v, nil
}

// FormatAmerican renders American odds with an explicit sign for underdogs
func FormatAmerican(american int) string {
	if american > 0 {
		return fmt.Sprintf("+%d", american)
	}
	return strconv.Itoa(american)
}

// DecimalToAmericanString converts a decimal price to its display form.
// Returns "" for prices that have no American equivalent.
func DecimalToAmericanString(decimal float64) string {
	american, err := DecimalToAmerican(decimal)
	if err != nil {
		return ""
	}
	return FormatAmerican(american)
}
