package quant

import (
	"fmt"
	"strings"
)

// Default bounds for the AMM liquidity parameter (b).
const (
	DefaultMinLiquidity = 50.0
	DefaultMaxLiquidity = 1000.0
)

// Thresholds and adjustment factors for liquidity tuning. Volatility and volume
// rules are independent; each contributes a percentage of the *current*
// liquidity, not of the running total.
const (
	highVolatilityThreshold = 0.2
	lowVolatilityThreshold  = 0.05
	highVolumeThreshold     = 5000.0
	lowVolumeThreshold      = 100.0
	minAdjustmentPercent    = 0.01

	volatilityIncreaseFactor = 0.15
	volatilityDecreaseFactor = 0.05
	volumeDecreaseFactor     = 0.05
	lowVolumeIncreaseFactor  = 0.10
)

// Provisioning heuristic constants for OptimalLiquidity.
const (
	baseLiquidity     = 100.0
	volumeScalePerK   = 10.0
	outcomeScale      = 20.0
	baselineStability = 0.1
	baseOutcomeCount  = 2
)

// LiquidityResult is the outcome of an Optimize call.
type LiquidityResult struct {
	RecommendedLiquidity float64
	AdjustmentAmount     float64
	Reason               string
}

// LiquidityOptimizer tunes the AMM liquidity parameter (b) within fixed bounds.
//
// Optimize reacts incrementally to a live market's current parameter and recent
// conditions; OptimalLiquidity derives a parameter from scratch for provisioning
// a brand-new market. The two deliberately use different formulas and must not
// be conflated.
type LiquidityOptimizer struct {
	minLiquidity float64
	maxLiquidity float64
}

// NewLiquidityOptimizer creates an optimizer with the given bounds. Non-positive
// or inverted bounds fall back to the defaults.
func NewLiquidityOptimizer(minLiquidity, maxLiquidity float64) *LiquidityOptimizer {
	if minLiquidity <= 0 || maxLiquidity <= minLiquidity {
		minLiquidity = DefaultMinLiquidity
		maxLiquidity = DefaultMaxLiquidity
	}
	return &LiquidityOptimizer{minLiquidity: minLiquidity, maxLiquidity: maxLiquidity}
}

// MinLiquidity returns the lower bound for the liquidity parameter.
func (o *LiquidityOptimizer) MinLiquidity() float64 { return o.minLiquidity }

// MaxLiquidity returns the upper bound for the liquidity parameter.
func (o *LiquidityOptimizer) MaxLiquidity() float64 { return o.maxLiquidity }

// Optimize recommends an adjusted liquidity parameter based on observed
// volatility and volume. Both rules fire independently; their contributions are
// summed, the result is clamped to the bounds, and the reported adjustment is
// recomputed after clamping (so clamping can silently shrink a nominally larger
// move). Net adjustments below 1% of the current parameter collapse to
// "no change" to suppress churn from marginal triggers.
//
// currentPrices is accepted for interface symmetry with the price predictor and
// reserved for depth-aware tuning.
func (o *LiquidityOptimizer) Optimize(
	currentLiquidity float64,
	currentPrices map[string]float64,
	totalVolume float64,
	priceVolatility float64,
) LiquidityResult {
	recommended := currentLiquidity
	var reasons []string

	if adj, reason := volatilityAdjustment(currentLiquidity, priceVolatility); adj != 0 {
		recommended += adj
		reasons = append(reasons, reason)
	}
	if adj, reason := volumeAdjustment(currentLiquidity, totalVolume); adj != 0 {
		recommended += adj
		reasons = append(reasons, reason)
	}

	recommended = clamp(recommended, o.minLiquidity, o.maxLiquidity)
	adjustment := recommended - currentLiquidity

	if abs(adjustment) < abs(currentLiquidity)*minAdjustmentPercent {
		return LiquidityResult{
			RecommendedLiquidity: currentLiquidity,
			AdjustmentAmount:     0,
			Reason:               "Adjustment too small, keeping current liquidity",
		}
	}

	reason := "No adjustment needed"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	return LiquidityResult{
		RecommendedLiquidity: recommended,
		AdjustmentAmount:     adjustment,
		Reason:               reason,
	}
}

func volatilityAdjustment(currentLiquidity, priceVolatility float64) (float64, string) {
	switch {
	case priceVolatility > highVolatilityThreshold:
		return currentLiquidity * volatilityIncreaseFactor,
			fmt.Sprintf("High volatility (%.2f)", priceVolatility)
	case priceVolatility < lowVolatilityThreshold:
		return -currentLiquidity * volatilityDecreaseFactor,
			fmt.Sprintf("Low volatility (%.2f)", priceVolatility)
	}
	return 0, ""
}

func volumeAdjustment(currentLiquidity, totalVolume float64) (float64, string) {
	switch {
	case totalVolume > highVolumeThreshold:
		return -currentLiquidity * volumeDecreaseFactor,
			fmt.Sprintf("High volume (%.0f USDC)", totalVolume)
	case totalVolume < lowVolumeThreshold:
		return currentLiquidity * lowVolumeIncreaseFactor,
			fmt.Sprintf("Low volume (%.0f USDC)", totalVolume)
	}
	return 0, ""
}

// OptimalLiquidity derives a liquidity parameter from scratch for provisioning
// a new market: base 100, +10 per $1000 of expected volume, +20 per outcome
// beyond the binary base, scaled by the target price stability relative to the
// 0.1 baseline, clamped to the bounds. It deliberately ignores any current
// parameter.
func (o *LiquidityOptimizer) OptimalLiquidity(totalVolume float64, numOutcomes int, targetPriceStability float64) float64 {
	volumeComponent := totalVolume / 1000.0 * volumeScalePerK

	extraOutcomes := numOutcomes - baseOutcomeCount
	if extraOutcomes < 0 {
		extraOutcomes = 0
	}
	outcomeComponent := float64(extraOutcomes) * outcomeScale

	optimal := baseLiquidity + volumeComponent + outcomeComponent
	if targetPriceStability > 0 {
		optimal *= targetPriceStability / baselineStability
	}

	return clamp(optimal, o.minLiquidity, o.maxLiquidity)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
