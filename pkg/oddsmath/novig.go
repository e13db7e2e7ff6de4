package oddsmath

import "math"

const (
	// Prices at or below this carry no usable information
	minUsablePrice = 1.0001

	powerTolerance     = 1e-4
	powerMaxIterations = 100
	derivativeEpsilon  = 1e-9
)

// NoVigFairPrices removes the bookmaker margin from a set of related prices using the power method
//
// Each usable price p (non-nil, > 1.0001) is converted to implied probability 1/p.
// If those probabilities already sum to ≤ 1 there is no overround and the prices are returned as-is.
// Otherwise an exponent k is solved so that Σ prob^k = 1, the powered probabilities are renormalized,
// and inverted back to prices rounded to 3 decimals.
//
// The result has the same length as the input; unusable positions are nil.
// Fewer than 2 usable prices yields all nil.
//
// Example:
// [1.91, 1.91] → implied 0.5236 + 0.5236 = 1.047 → fair [2.000, 2.000]
func NoVigFairPrices(prices []*float64) []*float64 {
	out := make([]*float64, len(prices))

	idx := make([]int, 0, len(prices))
	for i, p := range prices {
		if p != nil && !math.IsNaN(*p) && *p > minUsablePrice {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return out
	}

	implied := make([]float64, len(idx))
	sum := 0.0
	for j, i := range idx {
		implied[j] = 1.0 / *prices[i]
		sum += implied[j]
	}

	if sum <= 1.0 {
		for _, i := range idx {
			v := *prices[i]
			out[i] = &v
		}
		return out
	}

	fair := PowerProbabilities(implied)
	for j, i := range idx {
		if fair[j] <= derivativeEpsilon {
			continue
		}
		v := roundTo(1.0/fair[j], 3)
		out[i] = &v
	}

	return out
}

// PowerProbabilities rescales overround probabilities so they sum to 1
//
// Newton-Raphson on f(k) = Σ p_i^k - 1 starting at k = 1:
//   k ← k - (Σ p_i^k - 1) / Σ (ln p_i · p_i^k)
// Stops when |f(k)| < 1e-4, after 100 iterations, or when the derivative vanishes.
// The powered probabilities are then renormalized to sum to exactly 1.
//
// Probabilities must be in (0, 1); fewer than 2 returns zeros.
func PowerProbabilities(probabilities []float64) []float64 {
	n := len(probabilities)
	if n < 2 {
		return make([]float64, n)
	}
	for _, p := range probabilities {
		if p <= 0 || p >= 1 {
			return normalize(probabilities)
		}
	}

	k := 1.0
	for i := 0; i < powerMaxIterations; i++ {
		sumPowered := 0.0
		derivative := 0.0
		for _, p := range probabilities {
			pk := math.Pow(p, k)
			sumPowered += pk
			derivative += pk * math.Log(p)
		}

		overround := sumPowered - 1.0
		if math.Abs(overround) < powerTolerance {
			break
		}
		if math.Abs(derivative) < derivativeEpsilon {
			break
		}

		k -= overround / derivative
	}

	powered := make([]float64, n)
	for i, p := range probabilities {
		powered[i] = math.Pow(p, k)
	}

	return normalize(powered)
}

// normalize scales values to sum to 1, falling back to a uniform split
func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range out {
			out[i] = 1.0 / float64(len(values))
		}
		return out
	}
	for i, v := range values {
		out[i] = v / sum
	}
	return out
}

// CalculateVigPercentage calculates the overround of a set of decimal prices
// Vig% = (Σ 1/price - 1) * 100; 0 when there is no overround
func CalculateVigPercentage(prices []float64) float64 {
	total := 0.0
	for _, p := range prices {
		if p > 0 {
			total += 1.0 / p
		}
	}
	if total <= 1.0 {
		return 0
	}
	return (total - 1.0) * 100.0
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
