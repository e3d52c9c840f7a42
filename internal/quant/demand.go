package quant

// DefaultWindowSize is the moving window used for volume trend estimation.
const DefaultWindowSize = 10

// priceChangeSensitivity scales a per-period price change into demand pressure.
const priceChangeSensitivity = 10.0

// defaultOutcomes is used when no price history exists to derive outcomes from.
var defaultOutcomes = []string{"YES", "NO"}

// DemandForecaster estimates near-term buy pressure per outcome from recent
// price movement. It is an endpoint-difference heuristic, not a fitted model.
type DemandForecaster struct {
	windowSize int
}

// NewDemandForecaster creates a forecaster. Non-positive window sizes fall back
// to the default.
func NewDemandForecaster(windowSize int) *DemandForecaster {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &DemandForecaster{windowSize: windowSize}
}

// WindowSize returns the moving window length.
func (f *DemandForecaster) WindowSize() int { return f.windowSize }

// Forecast returns expected demand per outcome, normalized to sum to 1.0.
// Inputs are oldest first. With fewer than two volume observations there is not
// enough signal, and the uniform distribution over the known outcomes is
// returned. Otherwise demand per outcome is 0.5 plus the scaled latest price
// change, floored at zero, then normalized.
//
// timeHorizon (hours ahead) is reserved; the heuristic currently forecasts one
// period regardless.
func (f *DemandForecaster) Forecast(
	historicalVolumes []float64,
	historicalPrices []map[string]float64,
	timeHorizon float64,
) map[string]float64 {
	outcomes := extractOutcomes(historicalPrices)

	if len(historicalVolumes) < 2 {
		return equalDistribution(outcomes)
	}

	if len(historicalPrices) >= 2 {
		latest := historicalPrices[len(historicalPrices)-1]
		previous := historicalPrices[len(historicalPrices)-2]
		return normalize(priceBasedDemand(latest, previous))
	}

	return equalDistribution(outcomes)
}

// VolumeTrend returns the expected volume change per period over the most
// recent window: (last - first) / window length. Zero with fewer than two
// observations. This is an endpoint slope, not a regression fit.
func (f *DemandForecaster) VolumeTrend(historicalVolumes []float64) float64 {
	if len(historicalVolumes) < 2 {
		return 0
	}

	recent := historicalVolumes
	if len(recent) > f.windowSize {
		recent = recent[len(recent)-f.windowSize:]
	}
	if len(recent) < 2 {
		return 0
	}
	return (recent[len(recent)-1] - recent[0]) / float64(len(recent))
}

func extractOutcomes(historicalPrices []map[string]float64) []string {
	if len(historicalPrices) > 0 && len(historicalPrices[len(historicalPrices)-1]) > 0 {
		latest := historicalPrices[len(historicalPrices)-1]
		outcomes := make([]string, 0, len(latest))
		for outcome := range latest {
			outcomes = append(outcomes, outcome)
		}
		return outcomes
	}
	return defaultOutcomes
}

func equalDistribution(outcomes []string) map[string]float64 {
	out := make(map[string]float64, len(outcomes))
	share := 1.0 / float64(len(outcomes))
	for _, outcome := range outcomes {
		out[outcome] = share
	}
	return out
}

// priceBasedDemand maps each outcome's latest price change to demand pressure:
// rising prices signal buying interest.
func priceBasedDemand(latest, previous map[string]float64) map[string]float64 {
	demand := make(map[string]float64, len(latest))
	for outcome, price := range latest {
		change := price - previous[outcome]
		d := 0.5 + change*priceChangeSensitivity
		if d < 0 {
			d = 0
		}
		demand[outcome] = d
	}
	return demand
}

func normalize(demand map[string]float64) map[string]float64 {
	total := 0.0
	for _, d := range demand {
		total += d
	}
	if total <= 0 {
		return demand
	}
	for outcome := range demand {
		demand[outcome] /= total
	}
	return demand
}
