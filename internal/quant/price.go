// Package quant implements the AMM advisory heuristics: price smoothing,
// liquidity parameter adjustment, demand forecasting, and volatility estimation.
//
// Everything here is a pure function over its arguments (plus an optional
// history slice copied out of the cache beforehand); nothing blocks, holds
// locks, or touches I/O. Recommendations operate in two modes selected by data
// availability alone: without usable history a market is in cold start and gets
// pass-through behavior; with history the activity-adjusted heuristics apply.
package quant

import (
	"errors"

	"github.com/mitra-labs/mitra-quant/internal/models"
)

// ErrNoPrices is returned when a caller passes an empty price mapping.
// An empty mapping is a contract violation, not a cold start: there is no
// meaningful recommendation to fabricate.
var ErrNoPrices = errors.New("current prices must not be empty")

// Price output bounds. Prices are clamped to this band before renormalization
// so no outcome is ever quoted at 0 or 1.
const (
	minPrice = 0.01
	maxPrice = 0.99
)

// Volume-weighted smoothing knobs. At zero volume the blend toward the uniform
// distribution is capped at 10%; it vanishes entirely at the $1000 reference
// volume. Policy constants, not derived.
const (
	volumeReference = 1000.0
	maxSmoothing    = 0.1
)

const (
	coldStartConfidence = 0.5
	adjustedConfidence  = 0.6

	coldStartReason = "Baseline: using current AMM prices"
	adjustedReason  = "Smoothed prices based on market activity"
)

// PriceRecommendation is the result of a Predict call.
type PriceRecommendation struct {
	Prices     map[string]float64
	Confidence float64
	Reason     string
}

// PricePredictor recommends adjusted outcome prices for a market.
//
// Low-volume markets have noisy AMM prices; blending toward the uniform
// distribution caps the influence of a handful of early bets while leaving
// high-volume markets essentially untouched.
type PricePredictor struct{}

// NewPricePredictor creates a price predictor.
func NewPricePredictor() *PricePredictor {
	return &PricePredictor{}
}

// Predict returns recommended prices, a confidence in [0,1], and a reason.
//
// With no history the current prices are returned verbatim (cold start, not an
// error). Otherwise prices are blended toward the uniform distribution by a
// volume-derived smoothing factor, clamped to [0.01, 0.99], and renormalized to
// sum to 1. The output is numerically safe for any non-empty input: negative or
// absurd volume only saturates the smoothing clamp.
func (p *PricePredictor) Predict(
	currentPrices map[string]float64,
	totalVolume float64,
	betCount int,
	hoursSinceCreation float64,
	history []models.Snapshot,
) (PriceRecommendation, error) {
	if len(currentPrices) == 0 {
		return PriceRecommendation{}, ErrNoPrices
	}

	if len(history) == 0 {
		return PriceRecommendation{
			Prices:     copyPrices(currentPrices),
			Confidence: coldStartConfidence,
			Reason:     coldStartReason,
		}, nil
	}

	return PriceRecommendation{
		Prices:     smoothPrices(currentPrices, totalVolume),
		Confidence: adjustedConfidence,
		Reason:     adjustedReason,
	}, nil
}

// smoothPrices blends prices toward the uniform distribution. Higher volume
// means less smoothing (more confidence in the AMM's own prices).
func smoothPrices(currentPrices map[string]float64, totalVolume float64) map[string]float64 {
	equalShare := 1.0 / float64(len(currentPrices))

	factor := 1.0 - totalVolume/volumeReference
	if factor < 0 {
		factor = 0
	}
	if factor > maxSmoothing {
		factor = maxSmoothing
	}

	smoothed := make(map[string]float64, len(currentPrices))
	sum := 0.0
	for outcome, price := range currentPrices {
		v := (1-factor)*price + factor*equalShare
		v = clamp(v, minPrice, maxPrice)
		smoothed[outcome] = v
		sum += v
	}

	if sum > 0 {
		for outcome := range smoothed {
			smoothed[outcome] /= sum
		}
	}
	return smoothed
}

func copyPrices(prices map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(prices))
	for outcome, price := range prices {
		out[outcome] = price
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
