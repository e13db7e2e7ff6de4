package oddsmath_test

import (
	"math"
	"testing"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/oddsmath"
)

func prices(vals ...float64) []*float64 {
	out := make([]*float64, len(vals))
	for i, v := range vals {
		v := v
		if v == 0 {
			continue
		}
		out[i] = &v
	}
	return out
}

func impliedSum(fair []*float64) float64 {
	sum := 0.0
	for _, p := range fair {
		if p != nil {
			sum += 1.0 / *p
		}
	}
	return sum
}

func TestNoVigFairPrices_Symmetric(t *testing.T) {
	fair := oddsmath.NoVigFairPrices(prices(1.91, 1.91))

	if len(fair) != 2 {
		t.Fatalf("Expected 2 prices, got %d", len(fair))
	}
	for i, p := range fair {
		if p == nil {
			t.Fatalf("Expected price at %d, got nil", i)
		}
		if math.Abs(*p-2.0) > 0.001 {
			t.Errorf("Expected fair price 2.0 at %d, got %f", i, *p)
		}
	}
}

func TestNoVigFairPrices_SumsToOne(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
	}{
		{"Two way -110/-110", []float64{1.909, 1.909}},
		{"Two way favorite", []float64{1.5, 2.6}},
		{"Two way heavy favorite", []float64{1.12, 6.5}},
		{"Three way soccer", []float64{2.5, 3.4, 2.9}},
		{"Three way longshot", []float64{1.3, 5.5, 11.0}},
		{"Large overround", []float64{1.7, 1.7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fair := oddsmath.NoVigFairPrices(prices(tt.prices...))

			for i, p := range fair {
				if p == nil {
					t.Fatalf("Expected price at %d, got nil", i)
				}
				if *p < tt.prices[i] {
					t.Errorf("Fair price %f at %d should not be below offered %f", *p, i, tt.prices[i])
				}
			}

			if sum := impliedSum(fair); math.Abs(sum-1.0) > 1e-3 {
				t.Errorf("Expected implied probabilities to sum to 1, got %f", sum)
			}
		})
	}
}

func TestNoVigFairPrices_PreservesOrder(t *testing.T) {
	fair := oddsmath.NoVigFairPrices(prices(1.5, 2.6))
	if *fair[0] >= *fair[1] {
		t.Errorf("Expected favorite to stay shorter: got %f vs %f", *fair[0], *fair[1])
	}
}

func TestNoVigFairPrices_NoOverround(t *testing.T) {
	fair := oddsmath.NoVigFairPrices(prices(2.1, 2.1))

	for i, p := range fair {
		if p == nil || *p != 2.1 {
			t.Errorf("Expected unchanged price 2.1 at %d, got %v", i, p)
		}
	}
}

func TestNoVigFairPrices_TinyOverround(t *testing.T) {
	// implied sum 1.0000125 is still an overround and gets renormalized
	fair := oddsmath.NoVigFairPrices(prices(1.99995, 2.0))

	for i, p := range fair {
		if p == nil {
			t.Fatalf("Expected price at %d, got nil", i)
		}
		if math.Abs(*p-2.0) > 1e-9 {
			t.Errorf("Expected renormalized price 2.0 at %d, got %v", i, *p)
		}
	}
}

func TestNoVigFairPrices_Nulls(t *testing.T) {
	t.Run("fewer than two usable prices", func(t *testing.T) {
		fair := oddsmath.NoVigFairPrices(prices(1.9, 0))
		for i, p := range fair {
			if p != nil {
				t.Errorf("Expected nil at %d, got %f", i, *p)
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if fair := oddsmath.NoVigFairPrices(nil); len(fair) != 0 {
			t.Errorf("Expected empty result, got %d", len(fair))
		}
	})

	t.Run("null draw in three way", func(t *testing.T) {
		fair := oddsmath.NoVigFairPrices(prices(1.9, 0, 1.95))
		if fair[1] != nil {
			t.Errorf("Expected nil draw, got %f", *fair[1])
		}
		if fair[0] == nil || fair[2] == nil {
			t.Fatal("Expected home and away prices")
		}
		if sum := impliedSum(fair); math.Abs(sum-1.0) > 1e-3 {
			t.Errorf("Expected implied probabilities to sum to 1, got %f", sum)
		}
	})

	t.Run("price of one is unusable", func(t *testing.T) {
		fair := oddsmath.NoVigFairPrices(prices(1.0, 1.9))
		if fair[0] != nil || fair[1] != nil {
			t.Error("Expected all nil when only one usable price")
		}
	})
}

func TestNoVigFairPrices_Rounded(t *testing.T) {
	fair := oddsmath.NoVigFairPrices(prices(1.5, 2.6))
	for i, p := range fair {
		scaled := *p * 1000
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("Expected 3 decimal rounding at %d, got %v", i, *p)
		}
	}
}

func TestPowerProbabilities(t *testing.T) {
	got := oddsmath.PowerProbabilities([]float64{0.6, 0.45})

	sum := 0.0
	for _, p := range got {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Expected renormalized sum 1, got %f", sum)
	}
	if got[0] <= got[1] {
		t.Errorf("Expected order preserved, got %v", got)
	}

	if single := oddsmath.PowerProbabilities([]float64{0.5}); single[0] != 0 {
		t.Errorf("Expected zero for single outcome, got %v", single)
	}
}

func TestCalculateVigPercentage(t *testing.T) {
	vig := oddsmath.CalculateVigPercentage([]float64{1.91, 1.91})
	if math.Abs(vig-4.71) > 0.01 {
		t.Errorf("Expected vig ~4.71%%, got %.4f%%", vig)
	}

	if vig := oddsmath.CalculateVigPercentage([]float64{2.1, 2.1}); vig != 0 {
		t.Errorf("Expected no vig, got %f", vig)
	}
}
