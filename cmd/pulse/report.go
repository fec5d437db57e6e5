// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/archive"
	"github.com/feynmancraft/pulse/lib/markterm"
)

func newReportCommand() *cli.Command {
	var (
		trace    string
		markdown bool
		width    int
	)
	return &cli.Command{
		Name:    "report",
		Summary: "Summarize an archive as a run report",
		Usage:   "pulse report [directory] [flags]",
		Description: "report reads an archive and builds a Markdown report: tool call\n" +
			"statistics, a timeline per workflow trace, and an error digest.\n" +
			"On a terminal the Markdown renders styled; --markdown prints the\n" +
			"source, for pasting into a ticket.",
		Examples: []cli.Example{
			{Description: "Report on the configured archive", Command: "pulse report"},
			{Description: "One workflow only", Command: "pulse report --trace tr-9f2e41ac"},
			{Description: "Markdown source for a postmortem doc", Command: "pulse report --markdown > incident.md"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("report", pflag.ContinueOnError)
			flags.StringVar(&trace, "trace", "", "only events of this workflow trace")
			flags.BoolVar(&markdown, "markdown", false, "print Markdown source instead of rendering")
			flags.IntVar(&width, "width", 0, "render width (default: terminal width)")
			return flags
		},
		Run: func(args []string) error {
			directory := defaultArchiveDir()
			if len(args) > 0 {
				directory = args[0]
			}
			if directory == "" {
				return fmt.Errorf("archive directory required (archiving is not configured)")
			}

			reader, err := archive.OpenReader(directory)
			if err != nil {
				return err
			}
			report, err := buildReport(reader, trace)
			if err != nil {
				return err
			}

			source := report.Markdown()
			if markdown || !term.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Print(source)
				return nil
			}
			if width <= 0 {
				width = renderWidth()
			}
			fmt.Println(markterm.Render(source, markterm.DefaultPalette, width))
			return nil
		},
	}
}

// renderWidth picks a width for styled output: the terminal's, clamped
// to keep prose readable on very wide windows.
func renderWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return min(max(w, 40), 120)
}

// runReport is the aggregate of one archive read.
type runReport struct {
	Events   int
	FirstSeq uint64
	LastSeq  uint64
	Start    float64
	End      float64
	Tools    []toolReport
	Traces   []traceReport
	Errors   []errorReport
}

type toolReport struct {
	Tool    string
	Calls   int
	Errors  int
	TotalMS float64
	MaxMS   float64
}

func (t toolReport) AvgMS() float64 {
	if t.Calls == 0 {
		return 0
	}
	return t.TotalMS / float64(t.Calls)
}

type traceReport struct {
	TraceID string
	Start   float64
	End     float64
	Outcome string
	Steps   []timelineEntry
}

type timelineEntry struct {
	// Offset is seconds since the trace's first event.
	Offset float64
	Text   string
}

type errorReport struct {
	Seq     uint64
	TraceID string
	Type    string
	Message string
}

// buildReport aggregates an archive in one pass: per-tool call stats
// from tool.end events, a timeline per trace, and every event carrying
// an error attribute.
func buildReport(reader *archive.Reader, traceID string) (*runReport, error) {
	report := &runReport{}
	tools := make(map[string]*toolReport)
	traces := make(map[string]*traceReport)
	var traceOrder []string

	err := reader.Read(archive.Filter{TraceID: traceID}, func(e event.Event) error {
		report.Events++
		if report.FirstSeq == 0 {
			report.FirstSeq = e.Sequence
			report.Start = e.Timestamp
		}
		report.LastSeq = e.Sequence
		report.End = e.Timestamp

		if e.TraceID != "" {
			tr := traces[e.TraceID]
			if tr == nil {
				tr = &traceReport{TraceID: e.TraceID, Start: e.Timestamp, Outcome: "unfinished"}
				traces[e.TraceID] = tr
				traceOrder = append(traceOrder, e.TraceID)
			}
			tr.End = e.Timestamp
			if text, ok := timelineText(e); ok {
				tr.Steps = append(tr.Steps, timelineEntry{Offset: e.Timestamp - tr.Start, Text: text})
			}
			switch e.Type {
			case event.TypeJobEnd:
				tr.Outcome = "ok"
			case event.TypeJobError:
				tr.Outcome = "failed"
			}
		}

		if e.Type == event.TypeToolEnd {
			name, _ := e.Attrs["tool"].(string)
			if name == "" {
				name = "unknown"
			}
			tool := tools[name]
			if tool == nil {
				tool = &toolReport{Tool: name}
				tools[name] = tool
			}
			tool.Calls++
			ms := attrFloat(e.Attrs, "latency_ms")
			tool.TotalMS += ms
			tool.MaxMS = max(tool.MaxMS, ms)
			if status, _ := e.Attrs["status"].(string); status == event.StatusErr {
				tool.Errors++
			}
		}

		if message, ok := e.Attrs["error"].(string); ok && message != "" {
			report.Errors = append(report.Errors, errorReport{
				Seq: e.Sequence, TraceID: e.TraceID, Type: e.Type, Message: message,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Tools = append(report.Tools, *tools[name])
	}
	for _, id := range traceOrder {
		report.Traces = append(report.Traces, *traces[id])
	}
	return report, nil
}

// timelineText renders one event's timeline entry; false for events
// that only add noise there (tool.start, running stage markers,
// heartbeats).
func timelineText(e event.Event) (string, bool) {
	status, _ := e.Attrs["status"].(string)
	switch {
	case e.Type == event.TypeJobStart:
		if prompt, ok := e.Attrs["prompt"].(string); ok && prompt != "" {
			return fmt.Sprintf("job.start %q", clipText(prompt, 60)), true
		}
		return "job.start", true
	case e.Type == event.TypeJobEnd:
		return "job.end", true
	case e.Type == event.TypeJobError:
		return "job.error " + attrText(e.Attrs, "error"), true
	case e.Type == event.TypeStepTransfer:
		return fmt.Sprintf("transfer %s -> %s", attrText(e.Attrs, "from"), attrText(e.Attrs, "to")), true
	case e.Type == event.TypeToolEnd:
		text := fmt.Sprintf("tool %s %s (%s)", attrText(e.Attrs, "tool"), status, formatMS(attrFloat(e.Attrs, "latency_ms")))
		if status == event.StatusErr {
			text += ": " + attrText(e.Attrs, "error")
		}
		return text, true
	case strings.HasPrefix(e.Type, "step.") && status != event.StatusRunning:
		text := fmt.Sprintf("%s %s %s (%s)", e.Type, attrText(e.Attrs, "agent"), status, formatMS(attrFloat(e.Attrs, "latency_ms")))
		if status == event.StatusErr {
			text += ": " + attrText(e.Attrs, "error")
		}
		return text, true
	}
	return "", false
}

// Markdown renders the report as a GFM document.
func (r *runReport) Markdown() string {
	var b strings.Builder
	b.WriteString("# Pulse run report\n\n")
	if r.Events == 0 {
		b.WriteString("The archive contains no matching events.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d events, sequences %d to %d, %s of activity, %d traces.\n\n",
		r.Events, r.FirstSeq, r.LastSeq, formatSeconds(r.End-r.Start), len(r.Traces))

	if len(r.Tools) > 0 {
		b.WriteString("## Tool calls\n\n")
		b.WriteString("| Tool | Calls | Errors | Avg | Max |\n")
		b.WriteString("| --- | ---: | ---: | ---: | ---: |\n")
		for _, tool := range r.Tools {
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %s |\n",
				mdCell(tool.Tool), tool.Calls, tool.Errors, formatMS(tool.AvgMS()), formatMS(tool.MaxMS))
		}
		b.WriteString("\n")
	}

	if len(r.Traces) > 0 {
		b.WriteString("## Traces\n\n")
		for _, tr := range r.Traces {
			fmt.Fprintf(&b, "### %s, %s, %s\n\n", tr.TraceID, tr.Outcome, formatSeconds(tr.End-tr.Start))
			for _, step := range tr.Steps {
				fmt.Fprintf(&b, "- `+%.2fs` %s\n", step.Offset, step.Text)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, failure := range r.Errors {
			scope := failure.TraceID
			if scope == "" {
				scope = "no trace"
			}
			fmt.Fprintf(&b, "- seq %d (%s) %s: %s\n",
				failure.Seq, scope, failure.Type, clipText(failure.Message, 160))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// formatMS renders a millisecond quantity compactly: "87ms", "1.84s".
func formatMS(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

// attrFloat reads a numeric attribute. Archived attributes arrive as
// float64; locally built events may carry Go ints.
func attrFloat(attrs map[string]any, key string) float64 {
	switch v := attrs[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}

func attrText(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	if s == "" {
		return "unknown"
	}
	return s
}

// mdCell escapes a value for a Markdown table cell.
func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// clipText flattens newlines and truncates for one-line contexts.
func clipText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
