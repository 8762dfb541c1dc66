package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/queuetimes/parkpulse/pkg/config"
	"github.com/queuetimes/parkpulse/pkg/httpclient"
)

// LiveRide is one ride's live state as reported by the upstream API.
type LiveRide struct {
	ExternalID  string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	WaitTime    *int       `json:"wait_time"`
	IsOpen      *bool      `json:"is_open"`
	LastUpdated *time.Time `json:"last_updated"`
}

// LivePark is the upstream live payload for one park.
type LivePark struct {
	ExternalID string     `json:"id"`
	Name       string     `json:"name"`
	Rides      []LiveRide `json:"rides"`
}

// ScheduleEntry is one published operating-hours entry for a park.
type ScheduleEntry struct {
	Date     string    `json:"date"` // YYYY-MM-DD in the park's timezone
	Type     string    `json:"type"` // OPERATING, TICKETED_EVENT, ...
	OpensAt  time.Time `json:"opening_time"`
	ClosesAt time.Time `json:"closing_time"`
}

// ScheduleResponse is the upstream schedule payload for one park.
type ScheduleResponse struct {
	ExternalID string          `json:"id"`
	Schedule   []ScheduleEntry `json:"schedule"`
}

// Client fetches live ride status and schedules from the upstream API.
type Client struct {
	http *httpclient.Client
}

// NewClient creates an upstream API client with retry enabled.
func NewClient(cfg config.UpstreamConfig) *Client {
	opts := []httpclient.Option{httpclient.WithDefaultRetry()}
	if cfg.APIKey != "" {
		opts = append(opts, httpclient.WithHeader("X-API-Key", cfg.APIKey))
	}
	return &Client{
		http: httpclient.NewClient(cfg.BaseURL, cfg.Timeout(), opts...),
	}
}

// FetchLive retrieves the current ride statuses for one park.
func (c *Client) FetchLive(ctx context.Context, parkExternalID string) (*LivePark, error) {
	body, err := c.http.Get(ctx, fmt.Sprintf("/entity/%s/live", parkExternalID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live data for park %s: %w", parkExternalID, err)
	}

	var payload LivePark
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse live payload for park %s: %w", parkExternalID, err)
	}

	return &payload, nil
}

// FetchSchedule retrieves the published operating hours for one park.
func (c *Client) FetchSchedule(ctx context.Context, parkExternalID string) (*ScheduleResponse, error) {
	body, err := c.http.Get(ctx, fmt.Sprintf("/entity/%s/schedule", parkExternalID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule for park %s: %w", parkExternalID, err)
	}

	var payload ScheduleResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse schedule payload for park %s: %w", parkExternalID, err)
	}

	return &payload, nil
}
