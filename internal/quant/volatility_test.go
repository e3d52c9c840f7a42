package quant

import (
	"math"
	"testing"
	"time"

	"github.com/mitra-labs/mitra-quant/internal/models"
)

func snapshotsWithYes(yes ...float64) []models.Snapshot {
	out := make([]models.Snapshot, len(yes))
	base := time.Now()
	for i, y := range yes {
		out[i] = models.Snapshot{
			ID:         "snap",
			EventID:    "event-1",
			Prices:     map[string]float64{"YES": y, "NO": 1 - y},
			CapturedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestPriceVolatility_InsufficientHistory(t *testing.T) {
	if got := PriceVolatility(nil); got != 0 {
		t.Errorf("Expected 0 for nil history, got %v", got)
	}
	if got := PriceVolatility(snapshotsWithYes(0.5, 0.9)); got != 0 {
		t.Errorf("Expected 0 for two snapshots, got %v", got)
	}
}

func TestPriceVolatility_ConstantPricesAreCalm(t *testing.T) {
	if got := PriceVolatility(snapshotsWithYes(0.6, 0.6, 0.6, 0.6)); got != 0 {
		t.Errorf("Expected 0 volatility for constant prices, got %v", got)
	}
}

func TestPriceVolatility_JumpyPricesScoreHigh(t *testing.T) {
	// Movements per step (|ΔYES| + |ΔNO|): 0, then 0.8.
	// Sample std dev of {0, 0.8} = 0.8/√2 ≈ 0.566.
	got := PriceVolatility(snapshotsWithYes(0.5, 0.5, 0.9))
	want := 0.8 / math.Sqrt2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected volatility %v, got %v", want, got)
	}
	if got <= 0.2 {
		t.Errorf("Jumpy prices should clear the high-volatility threshold, got %v", got)
	}
}

func TestPriceVolatility_ClampedToOne(t *testing.T) {
	// Alternate between extremes so per-step movements swing between 0 and ~2.
	history := snapshotsWithYes(0.01, 0.99, 0.99, 0.01, 0.01, 0.99)
	if got := PriceVolatility(history); got > 1 {
		t.Errorf("Volatility must be clamped to [0,1], got %v", got)
	}
}

func TestPriceVolatility_HandlesOutcomeSetDrift(t *testing.T) {
	base := time.Now()
	history := []models.Snapshot{
		{EventID: "e", Prices: map[string]float64{"YES": 0.5, "NO": 0.5}, CapturedAt: base},
		{EventID: "e", Prices: map[string]float64{"YES": 0.5, "NO": 0.5}, CapturedAt: base.Add(time.Second)},
		{EventID: "e", Prices: map[string]float64{"YES": 0.7, "MAYBE": 0.3}, CapturedAt: base.Add(2 * time.Second)},
	}

	// Must not panic or go negative when the outcome set changes mid-history.
	got := PriceVolatility(history)
	if got < 0 || got > 1 {
		t.Errorf("Volatility out of range on outcome drift: %v", got)
	}
}
