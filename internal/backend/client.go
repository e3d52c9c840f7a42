// Package backend provides a client for the Mitra backend API. The backend is
// the source of truth for events, prices, and volume; this service only reads
// from it.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client provides read access to the Mitra backend
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// Event is an active event as reported by the backend
type Event struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	Title     string     `json:"title"`
	Outcomes  []string   `json:"outcomes"`
	BetCount  int        `json:"bet_count"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// NewClient creates a backend client. maxRetries and retryDelayBase control the
// per-request retry loop; non-positive values fall back to 3 tries / 1s base.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// ActiveEvents retrieves all events currently open for betting.
func (c *Client) ActiveEvents(ctx context.Context) ([]Event, error) {
	url := fmt.Sprintf("%s/api/events/active", c.baseURL)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active events: %w", err)
	}
	defer resp.Body.Close()

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode active events: %w", err)
	}
	return events, nil
}

// EventPrices retrieves the current outcome prices for an event.
func (c *Client) EventPrices(ctx context.Context, eventID string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/api/events/%s/prices", c.baseURL, eventID)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices for event %s: %w", eventID, err)
	}
	defer resp.Body.Close()

	var response struct {
		Prices map[string]float64 `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode prices for event %s: %w", eventID, err)
	}
	return response.Prices, nil
}

// EventVolume retrieves the total traded volume (USDC) for an event.
func (c *Client) EventVolume(ctx context.Context, eventID string) (float64, error) {
	url := fmt.Sprintf("%s/api/events/%s/volume", c.baseURL, eventID)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch volume for event %s: %w", eventID, err)
	}
	defer resp.Body.Close()

	var response struct {
		TotalVolume float64 `json:"total_volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode volume for event %s: %w", eventID, err)
	}
	return response.TotalVolume, nil
}

// Health reports whether the backend answers its health endpoint. A single
// attempt with a short deadline; never retried.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// doRequest performs a GET with linear-backoff retries on transport errors and
// 5xx responses. Non-2xx responses below 500 are returned as errors immediately.
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
