package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mitra-labs/mitra-quant/internal/backend"
	"github.com/mitra-labs/mitra-quant/internal/cache"
	"github.com/mitra-labs/mitra-quant/internal/quant"
	"github.com/mitra-labs/mitra-quant/internal/telegram"
)

// stubBackend serves one fixed event list and a per-call price sequence. The
// sequence index advances on every EventPrices call, so each polling cycle of a
// single-event backend observes the next entry.
type stubBackend struct {
	events       []backend.Event
	priceSeq     []map[string]float64
	volume       float64
	priceCalls   int
	failuresLeft int
	pricesErr    error
}

func (s *stubBackend) ActiveEvents(ctx context.Context) ([]backend.Event, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, errors.New("backend unreachable")
	}
	return s.events, nil
}

func (s *stubBackend) EventPrices(ctx context.Context, eventID string) (map[string]float64, error) {
	if s.pricesErr != nil {
		return nil, s.pricesErr
	}
	idx := s.priceCalls
	if idx >= len(s.priceSeq) {
		idx = len(s.priceSeq) - 1
	}
	s.priceCalls++
	return s.priceSeq[idx], nil
}

func (s *stubBackend) EventVolume(ctx context.Context, eventID string) (float64, error) {
	return s.volume, nil
}

type stubNotifier struct {
	alerts     [][]telegram.Alert
	errs       []error
	recoveries []int
}

func (n *stubNotifier) SendAlerts(alerts []telegram.Alert) error {
	n.alerts = append(n.alerts, alerts)
	return nil
}

func (n *stubNotifier) SendError(err error) error {
	n.errs = append(n.errs, err)
	return nil
}

func (n *stubNotifier) SendRecovery(failures int) error {
	n.recoveries = append(n.recoveries, failures)
	return nil
}

func singleEvent() []backend.Event {
	return []backend.Event{{
		ID:       "event-1",
		GroupID:  "g1",
		Title:    "Rain tomorrow?",
		Outcomes: []string{"YES", "NO"},
		BetCount: 5,
	}}
}

func pricesWithYes(yes ...float64) []map[string]float64 {
	out := make([]map[string]float64, len(yes))
	for i, y := range yes {
		out[i] = map[string]float64{"YES": y, "NO": 1 - y}
	}
	return out
}

func TestCycle_PopulatesCache(t *testing.T) {
	b := &stubBackend{
		events:   singleEvent(),
		priceSeq: pricesWithYes(0.6),
		volume:   250,
	}
	c := cache.New(10, 10, "")
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), nil, Options{})

	cycleTime := time.Now()
	if err := p.Cycle(context.Background(), cycleTime); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	snap, ok := c.Latest("event-1")
	if !ok {
		t.Fatal("Expected a cached snapshot for event-1")
	}
	if snap.ID == "" {
		t.Error("Expected a generated snapshot ID")
	}
	if snap.Prices["YES"] != 0.6 || snap.TotalVolume != 250 || snap.BetCount != 5 {
		t.Errorf("Unexpected snapshot contents: %+v", snap)
	}
	if !snap.CapturedAt.Equal(cycleTime) {
		t.Errorf("Snapshot should carry the cycle time, got %v", snap.CapturedAt)
	}
}

func TestCycle_SkipsEventsWithFetchErrors(t *testing.T) {
	b := &stubBackend{
		events:    singleEvent(),
		pricesErr: errors.New("price endpoint down"),
	}
	c := cache.New(10, 10, "")
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), nil, Options{})

	// A per-event fetch failure must not fail the cycle.
	if err := p.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle should tolerate per-event errors, got %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("Expected empty cache, got %d snapshots", c.Size())
	}
}

func TestCycle_FailsWhenListingFails(t *testing.T) {
	b := &stubBackend{failuresLeft: 1}
	p := New(b, cache.New(10, 10, ""), quant.NewLiquidityOptimizer(50, 1000), nil, Options{})

	if err := p.Cycle(context.Background(), time.Now()); err == nil {
		t.Fatal("Expected cycle error when event listing fails")
	}
}

func TestCycle_VolatilityAlert(t *testing.T) {
	b := &stubBackend{
		events:   singleEvent(),
		priceSeq: pricesWithYes(0.5, 0.5, 0.9),
		volume:   1000,
	}
	c := cache.New(10, 10, "")
	n := &stubNotifier{}
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), n, Options{
		AlertsEnabled:       true,
		VolatilityThreshold: 0.2,
		AlertCooldown:       30 * time.Minute,
	})

	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Cycle(context.Background(), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Cycle %d failed: %v", i, err)
		}
	}

	if len(n.alerts) != 1 {
		t.Fatalf("Expected exactly one alert batch, got %d", len(n.alerts))
	}
	alert := n.alerts[0][0]
	if alert.EventID != "event-1" || alert.Title != "Rain tomorrow?" {
		t.Errorf("Unexpected alert identity: %+v", alert)
	}
	if alert.Volatility <= 0.2 {
		t.Errorf("Alert volatility should exceed the threshold, got %v", alert.Volatility)
	}
	// Structural optimum for volume 1000 with 2 outcomes is 110; high
	// volatility recommends +15%.
	if alert.CurrentLiquidity != 110.0 {
		t.Errorf("Expected current liquidity 110.0, got %v", alert.CurrentLiquidity)
	}
	if alert.RecommendedLiquidity != 126.5 {
		t.Errorf("Expected recommended liquidity 126.5, got %v", alert.RecommendedLiquidity)
	}
}

func TestCycle_AlertCooldownSuppressesRepeat(t *testing.T) {
	b := &stubBackend{
		events:   singleEvent(),
		priceSeq: pricesWithYes(0.5, 0.5, 0.9, 0.9),
		volume:   1000,
	}
	c := cache.New(10, 10, "")
	n := &stubNotifier{}
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), n, Options{
		AlertsEnabled:       true,
		VolatilityThreshold: 0.2,
		AlertCooldown:       30 * time.Minute,
	})

	base := time.Now()
	for i := 0; i < 4; i++ {
		if err := p.Cycle(context.Background(), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Cycle %d failed: %v", i, err)
		}
	}

	// The fourth cycle still sees volatility above the threshold, but it is
	// within the cooldown window and not 50% higher than the first alert.
	if len(n.alerts) != 1 {
		t.Fatalf("Expected cooldown to suppress the repeat alert, got %d batches", len(n.alerts))
	}
}

func TestCycle_AlertAfterCooldownExpiry(t *testing.T) {
	b := &stubBackend{
		events:   singleEvent(),
		priceSeq: pricesWithYes(0.5, 0.5, 0.9, 0.9),
		volume:   1000,
	}
	c := cache.New(10, 10, "")
	n := &stubNotifier{}
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), n, Options{
		AlertsEnabled:       true,
		VolatilityThreshold: 0.2,
		AlertCooldown:       time.Minute,
	})

	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Cycle(context.Background(), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Cycle %d failed: %v", i, err)
		}
	}
	// Fourth cycle lands beyond the cooldown window.
	if err := p.Cycle(context.Background(), base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if len(n.alerts) != 2 {
		t.Fatalf("Expected a second alert after cooldown expiry, got %d batches", len(n.alerts))
	}
}

func TestCycle_AlertsDisabled(t *testing.T) {
	b := &stubBackend{
		events:   singleEvent(),
		priceSeq: pricesWithYes(0.5, 0.5, 0.9),
		volume:   1000,
	}
	c := cache.New(10, 10, "")
	n := &stubNotifier{}
	p := New(b, c, quant.NewLiquidityOptimizer(50, 1000), n, Options{
		AlertsEnabled:       false,
		VolatilityThreshold: 0.2,
	})

	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Cycle(context.Background(), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Cycle %d failed: %v", i, err)
		}
	}

	if len(n.alerts) != 0 {
		t.Errorf("Expected no alerts when disabled, got %d batches", len(n.alerts))
	}
}

func TestRun_NotifiesFirstFailureAndRecovery(t *testing.T) {
	b := &stubBackend{
		events:       singleEvent(),
		priceSeq:     pricesWithYes(0.5),
		volume:       100,
		failuresLeft: 2,
	}
	n := &stubNotifier{}
	p := New(b, cache.New(10, 10, ""), quant.NewLiquidityOptimizer(50, 1000), n, Options{
		Interval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if len(n.errs) != 1 {
		t.Errorf("Only the first consecutive failure should be notified, got %d", len(n.errs))
	}
	if len(n.recoveries) != 1 || n.recoveries[0] != 2 {
		t.Errorf("Expected one recovery notification reporting 2 failures, got %v", n.recoveries)
	}
}
