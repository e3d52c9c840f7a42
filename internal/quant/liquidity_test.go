package quant

import (
	"math"
	"strings"
	"testing"
)

func TestOptimize_HighVolatilityScenario(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.65, "NO": 0.35}

	result := o.Optimize(100, prices, 1000, 0.25)

	// Volatility rule fires (+15% of 100); volume rule does not (1000 is
	// neither > 5000 nor < 100).
	if result.RecommendedLiquidity != 115.0 {
		t.Errorf("Expected recommended liquidity 115.0, got %v", result.RecommendedLiquidity)
	}
	if result.AdjustmentAmount != 15.0 {
		t.Errorf("Expected adjustment 15.0, got %v", result.AdjustmentAmount)
	}
	if !strings.Contains(strings.ToLower(result.Reason), "volatility") {
		t.Errorf("Expected reason to mention volatility, got %q", result.Reason)
	}
}

func TestOptimize_BothRulesFire(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.5, "NO": 0.5}

	// High volatility (+15%) and low volume (+10%) sum to +25%.
	result := o.Optimize(200, prices, 50, 0.3)

	if result.RecommendedLiquidity != 250.0 {
		t.Errorf("Expected 250.0, got %v", result.RecommendedLiquidity)
	}
	if result.AdjustmentAmount != 50.0 {
		t.Errorf("Expected adjustment 50.0, got %v", result.AdjustmentAmount)
	}
	if !strings.Contains(result.Reason, "; ") {
		t.Errorf("Expected concatenated reasons, got %q", result.Reason)
	}
}

func TestOptimize_NoRuleFiresIsSuppressed(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.5, "NO": 0.5}

	// Volatility 0.1 and volume 1000 are both in the dead zone.
	result := o.Optimize(100, prices, 1000, 0.1)

	if result.RecommendedLiquidity != 100.0 {
		t.Errorf("Expected original liquidity back, got %v", result.RecommendedLiquidity)
	}
	if result.AdjustmentAmount != 0 {
		t.Errorf("Expected zero adjustment, got %v", result.AdjustmentAmount)
	}
}

func TestOptimize_ClampingShrinksAdjustmentToNothing(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.5, "NO": 0.5}

	// At the ceiling a +15% move clamps back to the ceiling; the post-clamp
	// adjustment is zero and the recommendation collapses to no change.
	result := o.Optimize(1000, prices, 1000, 0.5)

	if result.RecommendedLiquidity != 1000.0 {
		t.Errorf("Expected 1000.0, got %v", result.RecommendedLiquidity)
	}
	if result.AdjustmentAmount != 0 {
		t.Errorf("Expected zero adjustment after clamping, got %v", result.AdjustmentAmount)
	}
}

func TestOptimize_OpposingRulesCancel(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.5, "NO": 0.5}

	// Low volatility (-5%) and low volume (+10%) net to +5%: above the 1%
	// suppression floor, so the move is applied with both reasons.
	result := o.Optimize(100, prices, 50, 0.01)

	if math.Abs(result.RecommendedLiquidity-105.0) > 1e-9 {
		t.Errorf("Expected 105.0, got %v", result.RecommendedLiquidity)
	}
	if !strings.Contains(strings.ToLower(result.Reason), "low volatility") ||
		!strings.Contains(strings.ToLower(result.Reason), "low volume") {
		t.Errorf("Expected both reasons, got %q", result.Reason)
	}
}

func TestOptimize_BoundsHoldEverywhere(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)
	prices := map[string]float64{"YES": 0.5, "NO": 0.5}

	volatilities := []float64{0, 0.04, 0.05, 0.1, 0.2, 0.21, 0.5, 1.0}
	volumes := []float64{0, 50, 100, 1000, 5000, 5001, 50000}
	liquidities := []float64{50, 60, 100, 500, 990, 1000}

	for _, vol := range volatilities {
		for _, volume := range volumes {
			for _, liq := range liquidities {
				result := o.Optimize(liq, prices, volume, vol)
				if result.RecommendedLiquidity < 50 || result.RecommendedLiquidity > 1000 {
					t.Fatalf("Result out of bounds: liq=%v volume=%v volatility=%v -> %v",
						liq, volume, vol, result.RecommendedLiquidity)
				}
			}
		}
	}
}

func TestOptimalLiquidity_BaseCase(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)

	// Zero volume, two outcomes, baseline stability: base liquidity only.
	got := o.OptimalLiquidity(0, 2, 0.1)
	if got != 100.0 {
		t.Errorf("Expected base liquidity 100.0, got %v", got)
	}
}

func TestOptimalLiquidity_Components(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)

	cases := []struct {
		name      string
		volume    float64
		outcomes  int
		stability float64
		want      float64
	}{
		{"volume component", 1000, 2, 0.1, 110},
		{"outcome component", 0, 4, 0.1, 140},
		{"stability doubles", 0, 2, 0.2, 200},
		{"combined", 2000, 3, 0.1, 140},
		{"clamped to max", 500000, 2, 0.1, 1000},
		{"clamped to min", 0, 2, 0.01, 50},
		{"zero stability skips scaling", 0, 2, 0, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := o.OptimalLiquidity(tc.volume, tc.outcomes, tc.stability)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("OptimalLiquidity(%v, %d, %v) = %v, want %v",
					tc.volume, tc.outcomes, tc.stability, got, tc.want)
			}
		})
	}
}

func TestOptimalLiquidity_MonotonicInOutcomes(t *testing.T) {
	o := NewLiquidityOptimizer(50, 1000)

	for _, volume := range []float64{0, 500, 5000} {
		for outcomes := 1; outcomes < 10; outcomes++ {
			lower := o.OptimalLiquidity(volume, outcomes, 0.1)
			higher := o.OptimalLiquidity(volume, outcomes+1, 0.1)
			if higher < lower {
				t.Fatalf("Optimal liquidity decreased with more outcomes: %d->%d gave %v->%v (volume %v)",
					outcomes, outcomes+1, lower, higher, volume)
			}
		}
	}
}

func TestNewLiquidityOptimizer_BadBoundsFallBack(t *testing.T) {
	o := NewLiquidityOptimizer(0, -5)
	if o.MinLiquidity() != DefaultMinLiquidity || o.MaxLiquidity() != DefaultMaxLiquidity {
		t.Errorf("Expected default bounds, got [%v, %v]", o.MinLiquidity(), o.MaxLiquidity())
	}
}
