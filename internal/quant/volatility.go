package quant

import (
	"math"

	"github.com/mitra-labs/mitra-quant/internal/models"
)

// PriceVolatility summarizes recent price movement for a market as a scalar in
// [0, 1]. For each consecutive snapshot pair the absolute price changes across
// all outcomes are summed into a per-step movement; the result is the sample
// standard deviation of those movements (Bessel correction, divide by n-1).
// Fewer than three snapshots yield 0 (at least two movement observations are
// needed for a sample std dev).
func PriceVolatility(history []models.Snapshot) float64 {
	if len(history) < 3 {
		return 0
	}

	movements := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		movements = append(movements, stepMovement(history[i-1].Prices, history[i].Prices))
	}

	var sum float64
	for _, m := range movements {
		sum += m
	}
	mean := sum / float64(len(movements))

	var variance float64
	for _, m := range movements {
		diff := m - mean
		variance += diff * diff
	}
	variance /= float64(len(movements) - 1)

	return clamp(math.Sqrt(variance), 0, 1)
}

// stepMovement sums |Δp| across the union of outcomes in two price maps.
// Outcomes appearing on only one side count their full price as movement.
func stepMovement(prev, next map[string]float64) float64 {
	var total float64
	for outcome, price := range next {
		total += math.Abs(price - prev[outcome])
	}
	for outcome, price := range prev {
		if _, seen := next[outcome]; !seen {
			total += math.Abs(price)
		}
	}
	return total
}
