// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/feynmancraft/pulse/event"
)

func TestParseScenario(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		// Two-stage run with a hand-off between agents.
		"session": "demo",
		"prompt": "draw a feedback loop",
		"repeat": 3,
		"interval_ms": 250,
		"stages": [
			{"stage": "planning", "agent": "planner", "duration_ms": 800},
			{
				"stage": "generation",
				"duration_ms": 2100,
				"tools": [
					{"tool": "tikz_generator", "latency_ms": 1800},
				],
			},
		],
	}`)
	scen, err := parseScenario(data)
	if err != nil {
		t.Fatalf("parseScenario: %v", err)
	}
	if scen.Session != "demo" || scen.Prompt != "draw a feedback loop" {
		t.Errorf("session = %q prompt = %q", scen.Session, scen.Prompt)
	}
	if scen.Repeat != 3 || scen.Interval != 250*time.Millisecond {
		t.Errorf("repeat = %d interval = %v", scen.Repeat, scen.Interval)
	}
	if len(scen.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(scen.Stages))
	}
	if scen.Stages[0].Agent != "planner" {
		t.Errorf("stage 0 agent = %q", scen.Stages[0].Agent)
	}
	// A stage without an agent is run by an agent named after it.
	if scen.Stages[1].Agent != "generation" {
		t.Errorf("stage 1 agent = %q, want generation", scen.Stages[1].Agent)
	}
	if scen.Stages[1].Tools[0].Tool != "tikz_generator" {
		t.Errorf("stage 1 tool = %q", scen.Stages[1].Tools[0].Tool)
	}
}

func TestParseScenarioDefaults(t *testing.T) {
	t.Parallel()

	scen, err := parseScenario([]byte(`{"stages": [{"stage": "planning"}]}`))
	if err != nil {
		t.Fatalf("parseScenario: %v", err)
	}
	if scen.Session != "sim" {
		t.Errorf("session = %q, want sim", scen.Session)
	}
	if scen.Repeat != 1 {
		t.Errorf("repeat = %d, want 1", scen.Repeat)
	}
	if scen.Interval != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", scen.Interval)
	}
}

func TestParseScenarioRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{"no stages", `{"session": "demo"}`, "no stages"},
		{"unnamed stage", `{"stages": [{"agent": "planner"}]}`, "stage 0 has no name"},
		{"unnamed tool", `{"stages": [{"stage": "gen", "tools": [{"latency_ms": 5}]}]}`, `stage "gen" tool 0 has no name`},
		{"unknown field", `{"stages": [{"stage": "gen"}], "repeats": 2}`, "unknown field"},
		{"not an object", `[1, 2]`, "parsing scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseScenario([]byte(tt.data))
			if err == nil {
				t.Fatal("parseScenario accepted a bad scenario")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRunEventsShape(t *testing.T) {
	t.Parallel()

	scen := scenario{
		Session: "demo",
		Prompt:  "draw a feedback loop",
		Stages: []scenarioStage{
			{Stage: "planning", Agent: "planner", DurationMS: 800},
			{Stage: "generation", Agent: "generator", DurationMS: 2100, Tools: []scenarioTool{
				{Tool: "tikz_generator", LatencyMS: 1800},
			}},
		},
	}
	events := scen.runEvents("tr-11111111")

	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	want := []string{
		"job.start",
		"step.planning", "step.planning",
		"step.transfer",
		"step.generation", "tool.start", "tool.end", "step.generation",
		"job.end",
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (full order %v)", i, types[i], want[i], types)
		}
	}

	start := events[0]
	if start.SessionID != "demo" || start.TraceID != "tr-11111111" {
		t.Errorf("job.start session = %q trace = %q", start.SessionID, start.TraceID)
	}
	if start.Attrs["prompt"] != "draw a feedback loop" || start.Attrs["level"] != event.LevelCore {
		t.Errorf("job.start attrs = %v", start.Attrs)
	}

	transfer := events[3]
	if transfer.Attrs["from"] != "planner" || transfer.Attrs["to"] != "generator" {
		t.Errorf("transfer attrs = %v", transfer.Attrs)
	}

	// Both stage markers and the tool events of a stage share a step id.
	if events[1].StepID == "" || events[1].StepID != events[2].StepID {
		t.Errorf("planning step ids = %q and %q", events[1].StepID, events[2].StepID)
	}
	genStep := events[4].StepID
	for i := 5; i <= 7; i++ {
		if events[i].StepID != genStep {
			t.Errorf("event %d step id = %q, want %q", i, events[i].StepID, genStep)
		}
	}
	if genStep == events[1].StepID {
		t.Error("stages share a step id")
	}

	running, closing := events[4], events[7]
	if running.Attrs["status"] != event.StatusRunning || running.Attrs["agent"] != "generator" {
		t.Errorf("running marker attrs = %v", running.Attrs)
	}
	if closing.Attrs["status"] != event.StatusOK || closing.Attrs["latency_ms"] != 2100.0 {
		t.Errorf("closing marker attrs = %v", closing.Attrs)
	}
	if closing.Attrs["level"] != event.LevelStandard {
		t.Errorf("closing marker level = %v", closing.Attrs["level"])
	}

	toolEnd := events[6]
	if toolEnd.Attrs["tool"] != "tikz_generator" || toolEnd.Attrs["status"] != event.StatusOK {
		t.Errorf("tool.end attrs = %v", toolEnd.Attrs)
	}
	if toolEnd.Attrs["latency_ms"] != 1800.0 {
		t.Errorf("tool.end latency = %v", toolEnd.Attrs["latency_ms"])
	}
}

func TestRunEventsSameAgentSkipsTransfer(t *testing.T) {
	t.Parallel()

	scen := scenario{
		Session: "demo",
		Stages: []scenarioStage{
			{Stage: "draft", Agent: "writer"},
			{Stage: "polish", Agent: "writer"},
		},
	}
	for _, e := range scen.runEvents("tr-11111111") {
		if e.Type == event.TypeStepTransfer {
			t.Fatal("emitted a transfer between stages of the same agent")
		}
	}
}

func TestRunEventsFailedStageAborts(t *testing.T) {
	t.Parallel()

	scen := scenario{
		Session: "demo",
		Stages: []scenarioStage{
			{Stage: "planning", Agent: "planner"},
			{Stage: "generation", Agent: "generator", Error: "model timeout"},
			{Stage: "rendering", Agent: "renderer"},
		},
	}
	events := scen.runEvents("tr-11111111")

	last := events[len(events)-1]
	if last.Type != event.TypeJobError {
		t.Fatalf("last event = %q, want job.error", last.Type)
	}
	if last.Attrs["error"] != "generation: model timeout" {
		t.Errorf("job.error message = %v", last.Attrs["error"])
	}
	for _, e := range events {
		if e.Type == "step.rendering" {
			t.Error("stage after the failure still ran")
		}
	}
	closing := events[len(events)-2]
	if closing.Type != "step.generation" || closing.Attrs["status"] != event.StatusErr {
		t.Errorf("closing marker = %q attrs %v", closing.Type, closing.Attrs)
	}
	if closing.Attrs["error"] != "model timeout" {
		t.Errorf("closing marker error = %v", closing.Attrs["error"])
	}
}

func TestRunEventsToolFailureKeepsRunAlive(t *testing.T) {
	t.Parallel()

	scen := scenario{
		Session: "demo",
		Stages: []scenarioStage{
			{Stage: "generation", Agent: "generator", Tools: []scenarioTool{
				{Tool: "tikz_generator", LatencyMS: 900, Error: "compilation failed"},
				{Tool: "tikz_generator", LatencyMS: 1100},
			}},
		},
	}
	events := scen.runEvents("tr-11111111")

	last := events[len(events)-1]
	if last.Type != event.TypeJobEnd {
		t.Fatalf("last event = %q, want job.end (tool failures alone do not fail a run)", last.Type)
	}

	var ends []event.Event
	for _, e := range events {
		if e.Type == event.TypeToolEnd {
			ends = append(ends, e)
		}
	}
	if len(ends) != 2 {
		t.Fatalf("tool.end events = %d, want 2", len(ends))
	}
	if ends[0].Attrs["status"] != event.StatusErr || ends[0].Attrs["error"] != "compilation failed" {
		t.Errorf("failed call attrs = %v", ends[0].Attrs)
	}
	if ends[1].Attrs["status"] != event.StatusOK {
		t.Errorf("recovered call attrs = %v", ends[1].Attrs)
	}
}
