// Package cache provides a thread-safe, bounded in-memory store of market state
// history, keyed by event ID. Memory is bounded on two independent axes: the
// number of tracked events (least-recently-updated event evicted wholesale) and
// the number of snapshots retained per event (oldest trimmed first). The two
// knobs are independent so a few very active events cannot starve many lightly
// active ones, and vice versa.
//
// All reads hand out defensive copies, so callers can iterate history without
// holding any lock and without racing a concurrent Update. Optional JSON file
// persistence uses atomic writes (tmp file + rename) and survives restarts.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mitra-labs/mitra-quant/internal/models"
)

// Default bounds matching the production deployment.
const (
	DefaultMaxHistorySize = 1000
	DefaultMaxEvents      = 500
)

// Cache stores per-event snapshot sequences in chronological order (oldest first).
type Cache struct {
	mu         sync.RWMutex
	histories  map[string][]models.Snapshot
	recency    []string // event IDs, least-recently-updated first
	lastUpdate time.Time

	maxHistorySize int
	maxEvents      int
	filePath       string
}

// persistenceFile is the on-disk envelope for Save/Load.
type persistenceFile struct {
	Version   string                       `json:"version"`
	SavedAt   time.Time                    `json:"saved_at"`
	Snapshots map[string][]models.Snapshot `json:"snapshots"`
}

// New creates a Cache with the given bounds. Non-positive bounds fall back to
// the defaults. filePath may be empty to disable persistence.
func New(maxEvents, maxHistorySize int, filePath string) *Cache {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxHistorySize <= 0 {
		maxHistorySize = DefaultMaxHistorySize
	}
	return &Cache{
		histories:      make(map[string][]models.Snapshot),
		maxHistorySize: maxHistorySize,
		maxEvents:      maxEvents,
		filePath:       filePath,
	}
}

// Update appends a snapshot to the event's history, creating it if absent.
// If the event is new and the cache is at capacity, the least-recently-updated
// event is evicted wholesale before inserting. Update never fails; eviction and
// trimming are synchronous side effects, never deferred.
func (c *Cache) Update(eventID string, snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.histories[eventID]; !exists {
		if len(c.histories) >= c.maxEvents {
			c.evictOldest()
		}
		c.histories[eventID] = nil
	}

	// Recency is driven by updates, not reads.
	c.touch(eventID)

	history := append(c.histories[eventID], snap.Clone())
	if len(history) > c.maxHistorySize {
		trimmed := make([]models.Snapshot, c.maxHistorySize)
		copy(trimmed, history[len(history)-c.maxHistorySize:])
		history = trimmed
	}
	c.histories[eventID] = history
	c.lastUpdate = time.Now().UTC()
}

// touch moves eventID to the most-recently-updated end of the recency order.
func (c *Cache) touch(eventID string) {
	for i, id := range c.recency {
		if id == eventID {
			c.recency = append(c.recency[:i], c.recency[i+1:]...)
			break
		}
	}
	c.recency = append(c.recency, eventID)
}

// evictOldest drops the least-recently-updated event and its full history.
// Caller must hold the write lock.
func (c *Cache) evictOldest() {
	if len(c.recency) == 0 {
		return
	}
	oldest := c.recency[0]
	c.recency = c.recency[1:]
	delete(c.histories, oldest)
}

// Latest returns the most recent snapshot for an event, or false if the event
// is unknown or has no history.
func (c *Cache) Latest(eventID string) (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.histories[eventID]
	if len(history) == 0 {
		return models.Snapshot{}, false
	}
	return history[len(history)-1].Clone(), true
}

// History returns a defensive copy of the event's chronological history (oldest
// first). When limit > 0 only the most recent limit entries are returned.
// Unknown events yield an empty, non-nil slice.
func (c *Cache) History(eventID string, limit int) []models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := c.histories[eventID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]models.Snapshot, 0, len(history))
	for _, snap := range history {
		out = append(out, snap.Clone())
	}
	return out
}

// Size returns the total snapshot count across all events.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, history := range c.histories {
		total += len(history)
	}
	return total
}

// EventCount returns the number of tracked events.
func (c *Cache) EventCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.histories)
}

// LastUpdate returns the RFC 3339 timestamp of the last successful Update,
// regardless of which event it touched, or false if never updated.
func (c *Cache) LastUpdate() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastUpdate.IsZero() {
		return "", false
	}
	return c.lastUpdate.Format(time.RFC3339Nano), true
}

// Clear removes one event's history and its recency entry. Unknown IDs are a no-op.
func (c *Cache) Clear(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.histories[eventID]; !exists {
		return
	}
	delete(c.histories, eventID)
	for i, id := range c.recency {
		if id == eventID {
			c.recency = append(c.recency[:i], c.recency[i+1:]...)
			break
		}
	}
}

// ClearAll removes all histories and recency state.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.histories = make(map[string][]models.Snapshot)
	c.recency = nil
}

// Save persists the snapshot histories to the configured file using an atomic
// write. A no-op when persistence is disabled.
func (c *Cache) Save() error {
	if c.filePath == "" {
		return nil
	}

	c.mu.RLock()
	data := persistenceFile{
		Version:   "1.0",
		SavedAt:   time.Now().UTC(),
		Snapshots: c.histories,
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tempPath := c.filePath + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tempPath, c.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Load restores snapshot histories from the configured file. Missing files are
// not an error (fresh start). Bounds are re-applied and the recency order is
// rebuilt from each event's newest capture time.
func (c *Cache) Load() error {
	if c.filePath == "" {
		return nil
	}

	// Clean up any stale temp file from a previous crash.
	tempPath := c.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	jsonData, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var data persistenceFile
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal cache file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.histories = make(map[string][]models.Snapshot)
	c.recency = nil
	for eventID, history := range data.Snapshots {
		if len(history) == 0 {
			continue
		}
		if len(history) > c.maxHistorySize {
			history = history[len(history)-c.maxHistorySize:]
		}
		c.histories[eventID] = history
		c.recency = append(c.recency, eventID)
	}

	// Least-recently-updated first, judged by the newest snapshot per event.
	sort.Slice(c.recency, func(i, j int) bool {
		hi := c.histories[c.recency[i]]
		hj := c.histories[c.recency[j]]
		return hi[len(hi)-1].CapturedAt.Before(hj[len(hj)-1].CapturedAt)
	})

	for len(c.histories) > c.maxEvents {
		c.evictOldest()
	}
	return nil
}
