// Package models defines the core domain values for the mitra-quant service.
//
// Terminology (matching the Mitra backend's naming):
//   - Event: a prediction market created inside a friend group. This is the unit
//     we track; the backend's event ID is the correlation key everywhere.
//   - Snapshot: a point-in-time capture of an event's market state (outcome
//     prices, total volume, bet count) taken by the ingestion poller.
package models

import (
	"errors"
	"time"
)

// Snapshot is an immutable capture of an event's market state. Producers are
// expected, not required, to supply outcome prices that sum to 1.0; no invariant
// is enforced at construction so that malformed upstream data still lands in the
// history and degrades gracefully downstream.
type Snapshot struct {
	ID          string             `json:"id"`
	EventID     string             `json:"event_id"`
	Prices      map[string]float64 `json:"prices"`
	TotalVolume float64            `json:"total_volume"`
	BetCount    int                `json:"bet_count"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"` // event origin time, as reported by the backend
	CapturedAt  time.Time          `json:"captured_at"`          // wall-clock time the snapshot entered the cache
}

// Clone returns a deep copy. The price map is the only shared state; copying it
// lets cache readers iterate without holding any lock.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Prices = make(map[string]float64, len(s.Prices))
	for outcome, price := range s.Prices {
		out.Prices[outcome] = price
	}
	if s.CreatedAt != nil {
		created := *s.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

// Validate checks that a snapshot is well-formed enough to store.
// Out-of-range prices and negative volume are deliberately not rejected here;
// the recommenders clamp and normalize regardless of input sanity.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.EventID == "" {
		return errors.New("event ID must not be empty")
	}
	if s.CapturedAt.IsZero() {
		return errors.New("captured at must be set")
	}
	return nil
}
