// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
)

func newSimulateCommand() *cli.Command {
	var (
		address  string
		runs     int
		interval time.Duration
	)
	return &cli.Command{
		Name:    "simulate",
		Summary: "Emit synthetic workflow runs from a scenario file",
		Usage:   "pulse simulate <scenario.jsonc> [flags]",
		Description: "simulate plays a scenario file against the hub: each run is a full\n" +
			"workflow trace with job, stage, transfer, and tool events, shaped\n" +
			"exactly like instrumented workflow traffic. Scenario files are JSON\n" +
			"with comments and trailing commas allowed. Useful for exercising\n" +
			"dashboards and alert rules without a live workflow.",
		Examples: []cli.Example{
			{Description: "One run of the bundled demo scenario", Command: "pulse simulate demo.jsonc"},
			{Description: "Sustained load for a dashboard soak", Command: "pulse simulate demo.jsonc --runs 200 --interval 250ms"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
			flags.StringVar(&address, "address", defaultHubURL(), "hub base URL")
			flags.IntVar(&runs, "runs", 0, "number of runs (overrides the scenario)")
			flags.DurationVar(&interval, "interval", 0, "pause between runs (overrides the scenario)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("scenario file required")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			scen, err := parseScenario(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if runs > 0 {
				scen.Repeat = runs
			}
			if interval > 0 {
				scen.Interval = interval
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, service.NewClient(address), scen)
		},
	}
}

// scenario describes one synthetic workflow run, played once per
// repeat with a fresh trace id each time.
type scenario struct {
	Session string          `json:"session"`
	Prompt  string          `json:"prompt"`
	Stages  []scenarioStage `json:"stages"`
	Repeat  int             `json:"repeat"`

	// IntervalMS is the wire form; Interval the parsed one.
	IntervalMS float64       `json:"interval_ms"`
	Interval   time.Duration `json:"-"`
}

type scenarioStage struct {
	Stage      string         `json:"stage"`
	Agent      string         `json:"agent"`
	DurationMS float64        `json:"duration_ms"`
	Error      string         `json:"error"`
	Tools      []scenarioTool `json:"tools"`
}

type scenarioTool struct {
	Tool      string  `json:"tool"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error"`
}

// parseScenario decodes a JSONC scenario and applies defaults: one
// run, half a second apart, agents named after their stage.
func parseScenario(data []byte) (scenario, error) {
	var scen scenario
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&scen); err != nil {
		return scenario{}, fmt.Errorf("parsing scenario: %w", err)
	}

	if len(scen.Stages) == 0 {
		return scenario{}, fmt.Errorf("scenario has no stages")
	}
	for i := range scen.Stages {
		stage := &scen.Stages[i]
		if stage.Stage == "" {
			return scenario{}, fmt.Errorf("stage %d has no name", i)
		}
		if stage.Agent == "" {
			stage.Agent = stage.Stage
		}
		for j, tool := range stage.Tools {
			if tool.Tool == "" {
				return scenario{}, fmt.Errorf("stage %q tool %d has no name", stage.Stage, j)
			}
		}
	}
	if scen.Session == "" {
		scen.Session = "sim"
	}
	if scen.Repeat <= 0 {
		scen.Repeat = 1
	}
	scen.Interval = time.Duration(scen.IntervalMS * float64(time.Millisecond))
	if scen.Interval <= 0 {
		scen.Interval = 500 * time.Millisecond
	}
	return scen, nil
}

// runEvents expands the scenario into the event sequence of one run,
// in publish order. Sequences and timestamps are left for the hub.
func (s scenario) runEvents(traceID string) []event.Event {
	var events []event.Event
	job := func(typ string, attrs map[string]any) {
		attrs["level"] = event.LevelCore
		events = append(events, event.Event{
			Type: typ, SessionID: s.Session, TraceID: traceID, Attrs: attrs,
		})
	}
	flow := func(typ, stepID string, attrs map[string]any) {
		attrs["level"] = event.LevelStandard
		events = append(events, event.Event{
			Type: typ, TraceID: traceID, StepID: stepID, Attrs: attrs,
		})
	}

	start := map[string]any{}
	if s.Prompt != "" {
		start["prompt"] = s.Prompt
	}
	job(event.TypeJobStart, start)

	failure := ""
	for i, stage := range s.Stages {
		if i > 0 && s.Stages[i-1].Agent != stage.Agent {
			flow(event.TypeStepTransfer, "", map[string]any{
				"from": s.Stages[i-1].Agent, "to": stage.Agent,
			})
		}

		stepID := event.NewStepID()
		flow("step."+stage.Stage, stepID, map[string]any{
			"agent": stage.Agent, "status": event.StatusRunning,
		})
		for _, tool := range stage.Tools {
			flow(event.TypeToolStart, stepID, map[string]any{"tool": tool.Tool})
			end := map[string]any{"tool": tool.Tool, "latency_ms": tool.LatencyMS}
			if tool.Error != "" {
				end["status"] = event.StatusErr
				end["error"] = tool.Error
			} else {
				end["status"] = event.StatusOK
			}
			flow(event.TypeToolEnd, stepID, end)
		}

		closing := map[string]any{
			"agent": stage.Agent, "latency_ms": stage.DurationMS,
		}
		if stage.Error != "" {
			closing["status"] = event.StatusErr
			closing["error"] = stage.Error
			if failure == "" {
				failure = fmt.Sprintf("%s: %s", stage.Stage, stage.Error)
			}
		} else {
			closing["status"] = event.StatusOK
		}
		flow("step."+stage.Stage, stepID, closing)

		// A failed stage ends the run, like a real workflow abort.
		if stage.Error != "" {
			break
		}
	}

	if failure != "" {
		job(event.TypeJobError, map[string]any{"error": failure})
	} else {
		job(event.TypeJobEnd, map[string]any{})
	}
	return events
}

// runScenario plays every run against the hub, pausing the scenario's
// interval between runs.
func runScenario(ctx context.Context, client *service.Client, scen scenario) error {
	for run := 1; run <= scen.Repeat; run++ {
		traceID := event.NewTraceID()
		var lastSeq uint64
		for _, e := range scen.runEvents(traceID) {
			seq, err := emitOne(ctx, client, e)
			if err != nil {
				return fmt.Errorf("run %d: %w", run, err)
			}
			lastSeq = seq
		}
		fmt.Printf("run %d/%d trace %s through seq %d\n", run, scen.Repeat, traceID, lastSeq)

		if run == scen.Repeat {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(scen.Interval):
		}
	}
	return nil
}

func emitOne(ctx context.Context, client *service.Client, e event.Event) (uint64, error) {
	emitCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return client.Emit(emitCtx, e)
}
