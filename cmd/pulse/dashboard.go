// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
	"github.com/feynmancraft/pulse/metrics"
)

// feedCapacity bounds the recent-event feed kept in memory.
const feedCapacity = 256

// maxToolRows bounds the tool table so the feed keeps room on small
// terminals.
const maxToolRows = 8

// statsRefreshInterval paces dashboard-data polls.
const statsRefreshInterval = 2 * time.Second

// dashboardKeyMap defines the dashboard key bindings.
type dashboardKeyMap struct {
	Pause key.Binding
	Sort  key.Binding
	Quit  key.Binding
}

var defaultDashboardKeys = dashboardKeyMap{
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sort"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type sortMode int

const (
	sortByCalls sortMode = iota
	sortByErrors
	sortByLatency
	sortByName
)

func (m sortMode) String() string {
	switch m {
	case sortByCalls:
		return "calls"
	case sortByErrors:
		return "errors"
	case sortByLatency:
		return "latency"
	default:
		return "name"
	}
}

func (m sortMode) next() sortMode {
	return (m + 1) % 4
}

// feedEventMsg is one event delivered from the stream pump.
type feedEventMsg struct {
	event event.Event
}

// streamClosedMsg reports that the stream pump has stopped for good.
type streamClosedMsg struct{}

// dashboardDataMsg carries a stats refresh.
type dashboardDataMsg struct {
	health service.HealthInfo
	data   service.DashboardData
}

// refreshFailedMsg notes a failed refresh; the dashboard keeps showing
// the last good numbers.
type refreshFailedMsg struct {
	err error
}

// refreshTickMsg asks for the next stats refresh.
type refreshTickMsg struct{}

type dashboardStyles struct {
	border  lipgloss.Style
	title   lipgloss.Style
	summary lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	errCell lipgloss.Style
	help    lipgloss.Style
	event   *eventStyles
}

func newDashboardStyles() dashboardStyles {
	return dashboardStyles{
		border:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		summary: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true),
		cell:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		errCell: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		event:   newEventStyles(),
	}
}

// dashboardModel is the bubbletea model behind `pulse top`: hub
// counters in the header, the collector's per-tool table, and a live
// event feed.
type dashboardModel struct {
	client  *service.Client
	address string
	events  <-chan event.Event
	keys    dashboardKeyMap
	styles  dashboardStyles

	width  int
	height int
	ready  bool

	health    service.HealthInfo
	data      service.DashboardData
	haveStats bool
	lastError string

	feed     []event.Event
	paused   bool
	sort     sortMode
	streamUp bool
}

func newDashboardModel(client *service.Client, address string, events <-chan event.Event) dashboardModel {
	return dashboardModel{
		client:   client,
		address:  address,
		events:   events,
		keys:     defaultDashboardKeys,
		styles:   newDashboardStyles(),
		sort:     sortByCalls,
		streamUp: true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(listenForEvent(m.events), m.refreshStats(), scheduleRefresh())
}

// listenForEvent waits for the next pumped event. The command is
// re-issued after every receive so the feed keeps flowing.
func listenForEvent(events <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return feedEventMsg{event: e}
	}
}

func (m dashboardModel) refreshStats() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		health, err := client.Health(ctx)
		if err != nil {
			return refreshFailedMsg{err: err}
		}
		data, err := client.DashboardData(ctx)
		if err != nil {
			return refreshFailedMsg{err: err}
		}
		return dashboardDataMsg{health: health, data: data}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(statsRefreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func (m dashboardModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(message, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(message, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(message, m.keys.Sort):
			m.sort = m.sort.next()
		}
		return m, nil

	case feedEventMsg:
		if !m.paused && message.event.Type != event.TypeHeartbeat {
			m.feed = append(m.feed, message.event)
			if len(m.feed) > feedCapacity {
				m.feed = m.feed[len(m.feed)-feedCapacity:]
			}
		}
		return m, listenForEvent(m.events)

	case streamClosedMsg:
		m.streamUp = false
		return m, nil

	case dashboardDataMsg:
		m.health = message.health
		m.data = message.data
		m.haveStats = true
		m.lastError = ""
		return m, nil

	case refreshFailedMsg:
		m.lastError = message.err.Error()
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.refreshStats(), scheduleRefresh())
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	sections := []string{
		m.renderHeader(),
		m.renderTools(),
		m.renderFeed(),
		m.renderHelp(),
	}
	return strings.Join(sections, "\n")
}

// renderHeader is a one-line rule with hub identity and log counters
// embedded.
func (m dashboardModel) renderHeader() string {
	right := "connecting"
	if m.haveStats {
		log := m.health.Log
		right = fmt.Sprintf("seq %d · %d published · %d dropped · %d subs · up %s",
			log.CurrentSeq, log.Published, log.Dropped,
			log.ActiveSubscribers, formatSeconds(log.UptimeSeconds))
	}
	return m.sectionRule("pulse "+m.address, right)
}

// renderTools is the collector table, sorted by the active mode.
func (m dashboardModel) renderTools() string {
	right := ""
	if m.haveStats {
		sys := m.data.SystemStats
		right = fmt.Sprintf("%d calls · %d errors · %.1f%% ok",
			sys.TotalCalls, sys.TotalErrors, sys.OverallSuccessRate)
	}
	lines := []string{m.sectionRule("tools · sort "+m.sort.String(), right)}

	if !m.haveStats || len(m.data.ToolMetrics) == 0 {
		lines = append(lines, m.styles.summary.Render("  no tool calls yet"))
		return strings.Join(lines, "\n")
	}

	width := max(m.width, 40)
	toolWidth := max(width-46, 12)
	header := fmt.Sprintf("  %-*s %6s %5s %9s %9s %6s",
		toolWidth, "TOOL", "CALLS", "ERR", "AVG", "P95", "BUSY")
	lines = append(lines, m.styles.header.Render(ansi.Truncate(header, width, "")))

	for i, tool := range sortTools(m.data.ToolMetrics, m.sort) {
		if i >= maxToolRows {
			lines = append(lines, m.styles.summary.Render(fmt.Sprintf("  … %d more", len(m.data.ToolMetrics)-maxToolRows)))
			break
		}
		errText := fmt.Sprintf("%5d", tool.FailedCalls)
		if tool.FailedCalls > 0 {
			errText = m.styles.errCell.Render(errText)
		}
		row := fmt.Sprintf("  %-*s %6d %s %9s %9s %6d",
			toolWidth, ansi.Truncate(tool.Tool, toolWidth, "…"), tool.TotalCalls, errText,
			formatSeconds(tool.AvgDuration), formatSeconds(tool.P95), tool.ConcurrentCalls)
		lines = append(lines, m.styles.cell.Render(row))
	}
	return strings.Join(lines, "\n")
}

// renderFeed shows the newest events that fit the remaining height.
func (m dashboardModel) renderFeed() string {
	state := "live"
	if m.paused {
		state = "paused"
	}
	if !m.streamUp {
		state = "stream closed"
	}
	lines := []string{m.sectionRule("events", state)}

	rows := m.feedRows()
	feed := m.feed
	if len(feed) > rows {
		feed = feed[len(feed)-rows:]
	}
	width := max(m.width, 20)
	for _, e := range feed {
		line := "  " + formatEventLine(e, m.styles.event)
		lines = append(lines, ansi.Truncate(line, width, "…"))
	}
	for len(lines)-1 < rows {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// feedRows is the height left for feed lines after the fixed sections.
func (m dashboardModel) feedRows() int {
	toolLines := 2
	if m.haveStats && len(m.data.ToolMetrics) > 0 {
		toolLines = 2 + min(len(m.data.ToolMetrics), maxToolRows)
		if len(m.data.ToolMetrics) > maxToolRows {
			toolLines++
		}
	}
	// header rule + tool section + feed rule + help bar.
	return max(m.height-1-toolLines-1-1, 3)
}

// renderHelp is the bottom bar: state, bindings, and the last refresh
// error if any.
func (m dashboardModel) renderHelp() string {
	state := "LIVE"
	if m.paused {
		state = "PAUSED"
	}
	help := fmt.Sprintf(" [%s] q quit · p pause · s sort: %s", state, m.sort)
	if m.lastError != "" {
		help += " · " + clipText(m.lastError, 60)
	}
	return m.styles.help.Render(ansi.Truncate(help, max(m.width, 20), "…"))
}

// sectionRule builds a full-width rule with labels embedded:
// "── left ──────── right ──".
func (m dashboardModel) sectionRule(left, right string) string {
	width := max(m.width, 20)
	leftText := " " + left + " "
	rightText := ""
	if right != "" {
		rightText = " " + right + " "
	}

	used := 2 + lipgloss.Width(leftText) + lipgloss.Width(rightText) + 2
	filler := width - used
	if filler < 0 {
		rightText = ""
		filler = max(width-2-lipgloss.Width(leftText)-2, 0)
	}

	var b strings.Builder
	b.WriteString(m.styles.border.Render("──"))
	b.WriteString(m.styles.title.Render(leftText))
	b.WriteString(m.styles.border.Render(strings.Repeat("─", filler)))
	if rightText != "" {
		b.WriteString(m.styles.summary.Render(rightText))
	}
	b.WriteString(m.styles.border.Render("──"))
	return b.String()
}

// sortTools orders the collector's tool map for the table.
func sortTools(tools map[string]metrics.ToolMetrics, mode sortMode) []metrics.ToolMetrics {
	rows := make([]metrics.ToolMetrics, 0, len(tools))
	for _, tool := range tools {
		rows = append(rows, tool)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch mode {
		case sortByCalls:
			if a.TotalCalls != b.TotalCalls {
				return a.TotalCalls > b.TotalCalls
			}
		case sortByErrors:
			if a.FailedCalls != b.FailedCalls {
				return a.FailedCalls > b.FailedCalls
			}
		case sortByLatency:
			if a.P95 != b.P95 {
				return a.P95 > b.P95
			}
		}
		return a.Tool < b.Tool
	})
	return rows
}
