// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/version"
	"github.com/feynmancraft/pulse/metrics"
)

// maxEmitBytes caps a single /emit request body.
const maxEmitBytes = 1 << 20

// routes builds the hub's HTTP handler tree.
func (h *Hub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/emit", h.handleEmit)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/stats", h.handleStats)
	mux.HandleFunc("/metrics", h.handleMetrics)
	mux.HandleFunc("/system-stats", h.handleSystemStats)
	mux.HandleFunc("/heatmap", h.handleHeatmap)
	mux.HandleFunc("/dashboard-data", h.handleDashboard)
	mux.HandleFunc("/test/agent-event", h.handleTestAgentEvent)
	mux.HandleFunc("/test/mcp-event", h.handleTestMCPEvent)
	return h.cors(mux)
}

// cors wraps next with the browser origin allow-list. Dashboard dev
// servers are the only cross-origin consumers; requests from other
// origins still get a response, just without the CORS grant.
func (h *Hub) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(h.config.CORSOrigins))
	for _, origin := range h.config.CORSOrigins {
		allowed[origin] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleEmit publishes one caller-supplied event. The body is the
// flattened wire form; "type" is the only required key. Sequence and
// timestamp are stamped by the log, so whatever the caller sent for
// them is discarded.
func (h *Hub) handleEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEmitBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	e, err := event.FromMap(m)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if e.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}
	e.Timestamp = 0
	seq := h.log.Publish(e)
	if seq == 0 {
		writeError(w, http.StatusServiceUnavailable, "event log closed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "published",
		"seq":    seq,
	})
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pulse-hub",
		"version": version.Short(),
		"log":     h.log.Stats(),
	})
}

func (h *Hub) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.log.Stats())
}

// handleMetrics returns every tool's metrics, or a single tool's when
// the ?tool query parameter names one.
func (h *Hub) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if tool := r.URL.Query().Get("tool"); tool != "" {
		m, ok := h.collector.ToolSnapshot(tool)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown tool: "+tool)
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}
	writeJSON(w, http.StatusOK, h.collector.Snapshot())
}

func (h *Hub) handleSystemStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.SystemStats())
}

func (h *Hub) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "hours must be an integer")
			return
		}
		hours = n
	}
	writeJSON(w, http.StatusOK, h.collector.Heatmap(hours))
}

// handleDashboard bundles the three queries the dashboard polls into
// one response.
func (h *Hub) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"system_stats":     h.collector.SystemStats(),
		"tool_metrics":     h.collector.Snapshot(),
		"activity_heatmap": h.collector.Heatmap(0),
	})
}

// handleTestAgentEvent publishes a small synthetic workflow run
// through the bridge: a job, one planning stage, an agent transfer,
// and the job end. Dashboard development needs realistic traffic
// without running the real workflow.
func (h *Hub) handleTestAgentEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	traceID := event.NewTraceID()
	sessionID := "test-" + traceID
	h.bridge.JobStart(sessionID, traceID, map[string]any{
		"prompt": "draw a feynman diagram of electron-positron annihilation",
	})
	stage := h.bridge.Stage(traceID, "planning", "intent_analyzer")
	stage.End(nil)
	h.bridge.Transfer(traceID, "intent_analyzer", "diagram_planner")
	seq := h.bridge.JobEnd(sessionID, traceID, map[string]any{"steps": 1})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "published",
		"trace_id": traceID,
		"last_seq": seq,
	})
}

// handleTestMCPEvent records one synthetic tool call in the metrics
// collector, which publishes the matching tool_call_start and
// tool_call_end events.
func (h *Hub) handleTestMCPEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	traceID := event.NewTraceID()
	callID := h.collector.Start("particle_physics_mcp", metrics.CallInfo{
		TraceID: traceID,
		Params:  map[string]any{"query": "electron mass"},
	})
	h.collector.End(callID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "published",
		"trace_id": traceID,
		"call_id":  callID,
	})
}
