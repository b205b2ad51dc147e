// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package twinclient is the REST client for the digital-twin backend.
// It covers the control-plane endpoints that accompany the telemetry
// stream: triggering orchestration runs, resuming a halted system,
// supervisor chat, unit discovery, halt-state polling, and failure
// injection.
//
// The client satisfies incident.ControlAPI so a Session can drive the
// backend without knowing about HTTP.
package twinclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gantry-systems/gantry/incident"
	"github.com/gantry-systems/gantry/lib/netutil"
	"github.com/gantry-systems/gantry/stream"
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the base URL of the twin backend (e.g., "http://localhost:8000").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the twin backend's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the given backend.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("twinclient: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("twinclient: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("twinclient: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("twinclient: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// UnitInfo describes one discovered engine unit.
type UnitInfo struct {
	UnitID   string `json:"unit_id"`
	DocCount int    `json:"doc_count"`
	LastSeen string `json:"last_seen,omitempty"`
	// Active means telemetry arrived within the last minute.
	Active bool     `json:"active"`
	RUL    *float64 `json:"rul,omitempty"`
	Cycle  *int     `json:"cycle,omitempty"`
}

// SystemStatus is the backend's halt state, for polling.
type SystemStatus struct {
	Halted           bool    `json:"halted"`
	FailureTimestamp string  `json:"failure_timestamp,omitempty"`
	DowntimeSeconds  float64 `json:"downtime_seconds"`
}

// ResumeResult reports a completed resume.
type ResumeResult struct {
	Status          string  `json:"status"`
	DowntimeSeconds float64 `json:"downtime_seconds"`
}

// AlertRequest is the failure-injection payload for BroadcastAlert.
// Cycle may be an int or a placeholder string.
type AlertRequest struct {
	UnitID    string      `json:"unit_id"`
	RUL       float64     `json:"rul"`
	Vibration float64     `json:"vibration"`
	Cycle     stream.Cycle `json:"cycle,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// BroadcastResult reports how many stream clients received the alert.
type BroadcastResult struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Orchestrate runs the full agent pipeline for the unit and returns
// the resulting decision. The call blocks for the duration of the run.
func (c *Client) Orchestrate(ctx context.Context, unitID string) (*stream.Solution, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/orchestrate/"+url.PathEscape(unitID), nil)
	if err != nil {
		return nil, fmt.Errorf("twinclient: orchestrate %s failed: %w", unitID, err)
	}

	var solution stream.Solution
	if err := json.Unmarshal(body, &solution); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse orchestrate response: %w", err)
	}
	return &solution, nil
}

// SystemResume clears the backend's halt state. The downtime reported
// by the backend is logged; callers that need it use ResumeWithResult.
func (c *Client) SystemResume(ctx context.Context) error {
	result, err := c.ResumeWithResult(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("system resumed", "downtime_seconds", result.DowntimeSeconds)
	return nil
}

// ResumeWithResult clears the backend's halt state and returns the
// recorded downtime.
func (c *Client) ResumeWithResult(ctx context.Context) (*ResumeResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/system-resume", nil)
	if err != nil {
		return nil, fmt.Errorf("twinclient: system resume failed: %w", err)
	}

	var result ResumeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse resume response: %w", err)
	}
	return &result, nil
}

// Chat sends an operator message to the supervisor assistant.
func (c *Client) Chat(ctx context.Context, unitID, message string) (*incident.ChatReply, error) {
	request := map[string]string{
		"message": message,
		"unit_id": unitID,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/chat", request)
	if err != nil {
		return nil, fmt.Errorf("twinclient: chat failed: %w", err)
	}

	var reply incident.ChatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse chat response: %w", err)
	}
	return &reply, nil
}

// Units lists the engine units the backend knows about, most recently
// active first.
func (c *Client) Units(ctx context.Context) ([]UnitInfo, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/units", nil)
	if err != nil {
		return nil, fmt.Errorf("twinclient: unit listing failed: %w", err)
	}

	var response struct {
		Units []UnitInfo `json:"units"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse units response: %w", err)
	}
	return response.Units, nil
}

// Status returns the backend's current halt state.
func (c *Client) Status(ctx context.Context) (*SystemStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("twinclient: status failed: %w", err)
	}

	var status SystemStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse status response: %w", err)
	}
	return &status, nil
}

// BroadcastAlert injects a critical failure: the backend halts,
// pushes the alert to every stream client, and starts an orchestration
// run in the background.
func (c *Client) BroadcastAlert(ctx context.Context, request AlertRequest) (*BroadcastResult, error) {
	if request.UnitID == "" {
		return nil, fmt.Errorf("twinclient: unit ID is required for alert broadcast")
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/broadcast-alert", request)
	if err != nil {
		return nil, fmt.Errorf("twinclient: alert broadcast failed: %w", err)
	}

	var result BroadcastResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("twinclient: failed to parse broadcast response: %w", err)
	}
	return &result, nil
}

// CloseIdleConnections drops pooled connections so the next request
// dials fresh. Call after a network disruption.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// doRequest performs one JSON API request. Request URLs are built by
// direct concatenation onto the trimmed base URL, with callers
// escaping path segments as needed. Non-2xx responses become an
// *APIError carrying the body.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		StatusCode: response.StatusCode,
		Method:     method,
		Path:       path,
		Body:       strings.TrimSpace(string(responseBody)),
	}
}
