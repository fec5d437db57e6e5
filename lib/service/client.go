// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/metrics"
)

// maxFrameBytes caps one SSE frame on the client side. Events are
// small; the cap guards the line scanner against a corrupt stream.
const maxFrameBytes = 1 << 20

// maxErrorBodyBytes bounds how much of an error response body is
// captured into the returned error.
const maxErrorBodyBytes = 4 * 1024

// HealthInfo is the hub's /health response.
type HealthInfo struct {
	Status  string      `json:"status"`
	Service string      `json:"service"`
	Version string      `json:"version"`
	Log     event.Stats `json:"log"`
}

// EmitResponse is the hub's /emit response.
type EmitResponse struct {
	Status string `json:"status"`
	Seq    uint64 `json:"seq"`
}

// DashboardData is the hub's /dashboard-data response: everything the
// dashboard needs in one round trip.
type DashboardData struct {
	SystemStats     metrics.SystemStats            `json:"system_stats"`
	ToolMetrics     map[string]metrics.ToolMetrics `json:"tool_metrics"`
	ActivityHeatmap []metrics.HeatmapBucket        `json:"activity_heatmap"`
}

// Client talks to a hub over HTTP. Unary calls honor their context;
// Stream holds its connection open until the context is cancelled or
// the hub closes it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the hub at baseURL, e.g.
// "http://127.0.0.1:8001".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	var info HealthInfo
	err := c.getJSON(ctx, "/health", &info)
	return info, err
}

// Stats fetches the event log stats from /stats.
func (c *Client) Stats(ctx context.Context) (event.Stats, error) {
	var stats event.Stats
	err := c.getJSON(ctx, "/stats", &stats)
	return stats, err
}

// SystemStats fetches /system-stats.
func (c *Client) SystemStats(ctx context.Context) (metrics.SystemStats, error) {
	var stats metrics.SystemStats
	err := c.getJSON(ctx, "/system-stats", &stats)
	return stats, err
}

// Metrics fetches every tool's metrics from /metrics.
func (c *Client) Metrics(ctx context.Context) (map[string]metrics.ToolMetrics, error) {
	var tools map[string]metrics.ToolMetrics
	err := c.getJSON(ctx, "/metrics", &tools)
	return tools, err
}

// ToolMetrics fetches one tool's metrics. Unknown tools are an error.
func (c *Client) ToolMetrics(ctx context.Context, tool string) (metrics.ToolMetrics, error) {
	var m metrics.ToolMetrics
	err := c.getJSON(ctx, "/metrics?tool="+tool, &m)
	return m, err
}

// Heatmap fetches /heatmap for the trailing hours.
func (c *Client) Heatmap(ctx context.Context, hours int) ([]metrics.HeatmapBucket, error) {
	var buckets []metrics.HeatmapBucket
	err := c.getJSON(ctx, fmt.Sprintf("/heatmap?hours=%d", hours), &buckets)
	return buckets, err
}

// DashboardData fetches /dashboard-data.
func (c *Client) DashboardData(ctx context.Context) (DashboardData, error) {
	var data DashboardData
	err := c.getJSON(ctx, "/dashboard-data", &data)
	return data, err
}

// Emit publishes one event through /emit and returns the sequence the
// hub assigned.
func (c *Client) Emit(ctx context.Context, e event.Event) (uint64, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("encoding event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emit", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("POST /emit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, statusError("POST", "/emit", resp)
	}

	var emitted EmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&emitted); err != nil {
		return 0, fmt.Errorf("decoding /emit response: %w", err)
	}
	return emitted.Seq, nil
}

// StreamHandler receives each event from a Stream. Returning an error
// stops the stream; the error is returned from Stream.
type StreamHandler func(e event.Event) error

// Stream consumes the /events SSE stream, invoking handler for every
// frame (heartbeats included — filter on Type if unwanted). A nonzero
// since resumes after that sequence via Last-Event-ID.
//
// Returns the last sequence carried by an id: line, for resuming a
// reconnect. The error is nil when the hub closed the stream, the
// context's error when cancelled, and the handler's error when the
// handler aborted. Frames that fail to parse are skipped.
func (c *Client) Stream(ctx context.Context, since uint64, handler StreamHandler) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return since, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if since > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(since, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return since, fmt.Errorf("GET /events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return since, statusError("GET", "/events", resp)
	}

	last := since
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			var e event.Event
			err := json.Unmarshal(data, &e)
			data = data[:0]
			if err != nil {
				continue
			}
			if err := handler(e); err != nil {
				return last, err
			}
		case strings.HasPrefix(line, "id:"):
			if seq, err := strconv.ParseUint(strings.TrimSpace(line[len("id:"):]), 10, 64); err == nil {
				last = seq
			}
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(line[len("data:"):], " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
		}
		// Comment (":keepalive") and event: lines fall through.
	}

	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return last, fmt.Errorf("reading event stream: %w", err)
	}
	return last, nil
}

// getJSON performs a GET and decodes a JSON 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("GET", path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// statusError captures a non-200 response into an error, including a
// bounded slice of the body (hub errors are short JSON messages).
func statusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	message := strings.TrimSpace(string(body))
	if message == "" {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, message)
}
