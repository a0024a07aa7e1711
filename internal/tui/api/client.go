// Package api provides the HTTP client for connecting to a running
// hostmend agent.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client handles API communication with the agent.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Event mirrors the agent's event wire form.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	Severity  int            `json:"severity"`
}

// EventsResponse is the /v1/events payload.
type EventsResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

// PatternStatus mirrors one registered pattern's status.
type PatternStatus struct {
	Name      string        `json:"name"`
	Window    time.Duration `json:"window"`
	Threshold int           `json:"threshold"`
	Cooldown  time.Duration `json:"cooldown"`
	LastFired time.Time     `json:"last_fired"`
	FireCount uint64        `json:"fire_count"`
}

// PatternsResponse is the /v1/patterns payload.
type PatternsResponse struct {
	Patterns []PatternStatus `json:"patterns"`
	Count    int             `json:"count"`
}

// BufferStats mirrors the agent's buffer counters.
type BufferStats struct {
	Inserted uint64 `json:"inserted"`
	Evicted  uint64 `json:"evicted"`
	Retained int    `json:"retained"`
	Capacity int    `json:"capacity"`
}

// Status is the /v1/status payload.
type Status struct {
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Buffer   BufferStats     `json:"buffer"`
	Patterns []PatternStatus `json:"patterns"`
	Probes   []string        `json:"probes"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ScanResponse is the POST /v1/scan payload.
type ScanResponse struct {
	Status  string   `json:"status"`
	Probes  []string `json:"probes"`
	Firings []struct {
		Pattern string    `json:"pattern"`
		At      time.Time `json:"at"`
		Matched int       `json:"matched"`
	} `json:"firings"`
}

// NewClient creates an API client for the agent at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetHealth fetches the agent's health status.
func (c *Client) GetHealth() (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get("/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetStatus fetches the aggregate agent status.
func (c *Client) GetStatus() (*Status, error) {
	var status Status
	if err := c.get("/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetEvents fetches up to limit recent events, newest first.
func (c *Client) GetEvents(limit int) (*EventsResponse, error) {
	var events EventsResponse
	if err := c.get(fmt.Sprintf("/v1/events?limit=%d", limit), &events); err != nil {
		return nil, err
	}
	return &events, nil
}

// GetPatterns fetches the registered pattern statuses.
func (c *Client) GetPatterns() (*PatternsResponse, error) {
	var patterns PatternsResponse
	if err := c.get("/v1/patterns", &patterns); err != nil {
		return nil, err
	}
	return &patterns, nil
}

// TriggerScan asks the agent to run every probe immediately.
func (c *Client) TriggerScan() (*ScanResponse, error) {
	resp, err := c.httpClient.Post(c.baseURL+"/v1/scan", "application/json", bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected status %d from /v1/scan", resp.StatusCode)
	}

	var scan ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &scan, nil
}
