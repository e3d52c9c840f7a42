// Package poller drives periodic ingestion of market state from the Mitra
// backend into the history cache, and raises volatility alerts with per-market
// cooldown deduplication.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mitra-labs/mitra-quant/internal/backend"
	"github.com/mitra-labs/mitra-quant/internal/cache"
	"github.com/mitra-labs/mitra-quant/internal/logger"
	"github.com/mitra-labs/mitra-quant/internal/models"
	"github.com/mitra-labs/mitra-quant/internal/quant"
	"github.com/mitra-labs/mitra-quant/internal/telegram"
)

// Backend is the slice of the backend client the poller needs.
type Backend interface {
	ActiveEvents(ctx context.Context) ([]backend.Event, error)
	EventPrices(ctx context.Context, eventID string) (map[string]float64, error)
	EventVolume(ctx context.Context, eventID string) (float64, error)
}

// Notifier delivers operational notifications. A nil Notifier disables them.
type Notifier interface {
	SendAlerts(alerts []telegram.Alert) error
	SendError(err error) error
	SendRecovery(failures int) error
}

// Options configures the poller.
type Options struct {
	Interval            time.Duration
	AlertsEnabled       bool
	VolatilityThreshold float64
	AlertCooldown       time.Duration
	PersistenceInterval time.Duration
}

// alertRecord tracks a previously sent alert for cooldown deduplication.
type alertRecord struct {
	Volatility float64
	SentAt     time.Time
}

// Poller periodically snapshots active events into the cache.
type Poller struct {
	backend   Backend
	cache     *cache.Cache
	optimizer *quant.LiquidityOptimizer
	notifier  Notifier
	opts      Options

	alerted map[string]alertRecord // key = event ID
}

// New creates a poller. notifier may be nil.
func New(b Backend, c *cache.Cache, optimizer *quant.LiquidityOptimizer, notifier Notifier, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	return &Poller{
		backend:   b,
		cache:     c,
		optimizer: optimizer,
		notifier:  notifier,
		opts:      opts,
		alerted:   make(map[string]alertRecord),
	}
}

// Run blocks until ctx is cancelled, executing an immediate first cycle and then
// one cycle per tick. The first failed cycle and the subsequent recovery are
// notified; repeated failures are only logged.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var persistTicker *time.Ticker
	var persistC <-chan time.Time
	if p.opts.PersistenceInterval > 0 {
		persistTicker = time.NewTicker(p.opts.PersistenceInterval)
		persistC = persistTicker.C
		defer persistTicker.Stop()
	}

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Polling cycle failed: %v", err)
			if consecutiveFailures == 1 && p.notifier != nil {
				if sendErr := p.notifier.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && p.notifier != nil {
			if sendErr := p.notifier.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial polling cycle")
	handleCycleResult(p.Cycle(ctx, time.Now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Poller stopped")
			return

		case tickTime := <-ticker.C:
			handleCycleResult(p.Cycle(ctx, tickTime))

		case <-persistC:
			if err := p.cache.Save(); err != nil {
				logger.Warn("Failed to persist cache: %v", err)
			}
		}
	}
}

// Cycle fetches every active event's state and updates the cache. Per-event
// fetch errors are logged and skipped; only a failure to list events fails the
// cycle. Snapshots are stamped with cycleTime (the tick time), so snapshot ages
// stay exact multiples of the poll interval regardless of processing latency.
func (p *Poller) Cycle(ctx context.Context, cycleTime time.Time) error {
	events, err := p.backend.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active events: %w", err)
	}

	var alerts []telegram.Alert
	updated := 0
	for _, event := range events {
		prices, err := p.backend.EventPrices(ctx, event.ID)
		if err != nil {
			logger.Warn("Failed to fetch prices for event %s: %v", event.ID, err)
			continue
		}
		volume, err := p.backend.EventVolume(ctx, event.ID)
		if err != nil {
			logger.Warn("Failed to fetch volume for event %s: %v", event.ID, err)
			continue
		}

		snap := models.Snapshot{
			ID:          uuid.New().String(),
			EventID:     event.ID,
			Prices:      prices,
			TotalVolume: volume,
			BetCount:    event.BetCount,
			CreatedAt:   event.CreatedAt,
			CapturedAt:  cycleTime,
		}
		p.cache.Update(event.ID, snap)
		updated++

		if alert, ok := p.checkVolatility(event, prices, volume, cycleTime); ok {
			alerts = append(alerts, alert)
		}
	}
	logger.Debug("Polling cycle complete: %d/%d events updated", updated, len(events))

	if len(alerts) > 0 && p.notifier != nil {
		if err := p.notifier.SendAlerts(alerts); err != nil {
			logger.Warn("Failed to send volatility alerts: %v", err)
		} else {
			p.recordAlerts(alerts, cycleTime)
		}
	}
	return nil
}

// checkVolatility evaluates an event's cached history against the alert
// threshold. A previously alerted event is suppressed for the cooldown window
// unless volatility has grown by at least 50% since the last alert. The
// recommended liquidity move is computed against the structurally optimal
// parameter for the event's volume and outcome count.
func (p *Poller) checkVolatility(event backend.Event, prices map[string]float64, volume float64, now time.Time) (telegram.Alert, bool) {
	if !p.opts.AlertsEnabled {
		return telegram.Alert{}, false
	}

	volatility := quant.PriceVolatility(p.cache.History(event.ID, 0))
	if volatility <= p.opts.VolatilityThreshold {
		return telegram.Alert{}, false
	}

	if rec, exists := p.alerted[event.ID]; exists && now.Sub(rec.SentAt) < p.opts.AlertCooldown {
		if volatility < rec.Volatility*1.5 {
			return telegram.Alert{}, false
		}
	}

	current := p.optimizer.OptimalLiquidity(volume, len(prices), 0.1)
	result := p.optimizer.Optimize(current, prices, volume, volatility)

	return telegram.Alert{
		EventID:              event.ID,
		Title:                event.Title,
		Volatility:           volatility,
		TotalVolume:          volume,
		CurrentLiquidity:     current,
		RecommendedLiquidity: result.RecommendedLiquidity,
		Reason:               result.Reason,
		DetectedAt:           now,
	}, true
}

// recordAlerts marks events as alerted at the given time for cooldown purposes.
func (p *Poller) recordAlerts(alerts []telegram.Alert, now time.Time) {
	for _, alert := range alerts {
		p.alerted[alert.EventID] = alertRecord{Volatility: alert.Volatility, SentAt: now}
	}
}
