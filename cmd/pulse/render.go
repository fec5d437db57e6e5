// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/feynmancraft/pulse/event"
)

// eventStyles colors the one-line event renderer shared by tail,
// replay, and the dashboard feed. The zero value renders plain text.
type eventStyles struct {
	time      lipgloss.Style
	seq       lipgloss.Style
	trace     lipgloss.Style
	attrKey   lipgloss.Style
	attrValue lipgloss.Style
	errValue  lipgloss.Style
	job       lipgloss.Style
	jobErr    lipgloss.Style
	step      lipgloss.Style
	tool      lipgloss.Style
	system    lipgloss.Style
	other     lipgloss.Style
}

// plainEventStyles renders without color, for pipes and files.
var plainEventStyles = &eventStyles{}

func newEventStyles() *eventStyles {
	faint := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	return &eventStyles{
		time:      faint,
		seq:       faint,
		trace:     lipgloss.NewStyle().Foreground(lipgloss.Color("139")),
		attrKey:   faint,
		attrValue: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		errValue:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		job:       lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true),
		jobErr:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		step:      lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("80")),
		system:    faint,
		other:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

func (s *eventStyles) typeStyle(eventType string) lipgloss.Style {
	switch {
	case eventType == event.TypeJobError:
		return s.jobErr
	case strings.HasPrefix(eventType, "job."):
		return s.job
	case strings.HasPrefix(eventType, "step."):
		return s.step
	case strings.HasPrefix(eventType, "tool."):
		return s.tool
	case eventType == event.TypeHeartbeat || strings.HasPrefix(eventType, "server."):
		return s.system
	default:
		return s.other
	}
}

// formatEventLine renders one event as a single line:
//
//	15:04:05  #412  tool.end       tr-9f2e41ac  tool=tikz_generator latency_ms=1840 status=ok
//
// Attribute strings pass through ansi.Strip first; event payloads are
// untrusted terminal input. The level attribute is omitted, it is on
// every event and says nothing a human reading a feed wants.
func formatEventLine(e event.Event, styles *eventStyles) string {
	stamp := eventTime(e.Timestamp).Format("15:04:05")
	parts := []string{
		styles.time.Render(stamp),
		styles.seq.Render(fmt.Sprintf("#%d", e.Sequence)),
		styles.typeStyle(e.Type).Render(fmt.Sprintf("%-14s", e.Type)),
	}
	if e.TraceID != "" {
		parts = append(parts, styles.trace.Render(e.TraceID))
	}
	if e.SessionID != "" {
		parts = append(parts, styles.attrKey.Render("session=")+styles.attrValue.Render(formatAttrValue(e.SessionID)))
	}

	keys := make([]string, 0, len(e.Attrs))
	hasError := false
	for k := range e.Attrs {
		switch k {
		case "level":
			continue
		case "error":
			hasError = true
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, styles.attrKey.Render(k+"=")+styles.attrValue.Render(formatAttrValue(e.Attrs[k])))
	}
	if hasError {
		parts = append(parts, styles.attrKey.Render("error=")+styles.errValue.Render(formatAttrValue(e.Attrs["error"])))
	}
	return strings.Join(parts, "  ")
}

// eventTime converts an epoch-seconds timestamp to local time.
func eventTime(ts float64) time.Time {
	seconds := math.Floor(ts)
	return time.Unix(int64(seconds), int64((ts-seconds)*1e9))
}

// formatAttrValue renders an attribute value for a log line. Strings
// that contain spaces, quotes, or control characters are quoted so the
// line stays a single parseable record.
func formatAttrValue(v any) string {
	switch value := v.(type) {
	case string:
		clean := ansi.Strip(value)
		if clean == "" || strings.ContainsFunc(clean, func(r rune) bool {
			return r == ' ' || r == '"' || unicode.IsControl(r)
		}) {
			return strconv.Quote(clean)
		}
		return clean
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return "null"
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return ansi.Strip(string(encoded))
	}
}

// formatSeconds renders a float second count as a rounded duration.
func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d >= time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Millisecond).String()
}

// matchesType reports whether eventType matches any of the patterns. A
// pattern with a trailing dot matches the whole family, so "step."
// takes every stage event. No patterns means match everything.
func matchesType(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, ".") {
			if strings.HasPrefix(eventType, pattern) {
				return true
			}
		} else if eventType == pattern {
			return true
		}
	}
	return false
}
