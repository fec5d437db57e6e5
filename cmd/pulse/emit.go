// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
)

func newEmitCommand() *cli.Command {
	var (
		address string
		session string
		trace   string
		step    string
		level   int
		jsonOut bool
	)
	return &cli.Command{
		Name:    "emit",
		Summary: "Publish a single event to the hub",
		Usage:   "pulse emit <type> [key=value...] [flags]",
		Description: "emit publishes one event through the hub's HTTP ingress. Attribute\n" +
			"values parse as JSON first, so latency_ms=250 arrives as a number\n" +
			"and done=true as a boolean; anything that is not JSON stays a string.",
		Examples: []cli.Example{
			{Description: "Mark a deploy in the event stream", Command: "pulse emit deploy.done service=renderer"},
			{Description: "A failed tool call with structured fields", Command: "pulse emit tool.end tool=latex_compiler status=err latency_ms=912 --trace tr-9f2e41ac"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("emit", pflag.ContinueOnError)
			flags.StringVar(&address, "address", defaultHubURL(), "hub base URL")
			flags.StringVar(&session, "session", "", "session id to stamp on the event")
			flags.StringVar(&trace, "trace", "", "workflow trace id")
			flags.StringVar(&step, "step", "", "step id")
			flags.IntVar(&level, "level", 0, "level attribute (1 core, 2 standard, 3 debug)")
			flags.BoolVar(&jsonOut, "json", false, "print the assigned sequence as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("event type required")
			}
			e, err := buildEvent(args[0], args[1:], session, trace, step, level)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			seq, err := service.NewClient(address).Emit(ctx, e)
			if err != nil {
				return err
			}

			if jsonOut {
				return cli.WriteJSON(map[string]uint64{"seq": seq})
			}
			fmt.Printf("published seq %d\n", seq)
			return nil
		},
	}
}

// buildEvent assembles an event from the type argument and key=value
// attribute pairs.
func buildEvent(eventType string, pairs []string, session, trace, step string, level int) (event.Event, error) {
	e := event.Event{Type: eventType, SessionID: session, TraceID: trace, StepID: step}
	attrs := make(map[string]any, len(pairs)+1)
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return event.Event{}, fmt.Errorf("attribute %q is not key=value", pair)
		}
		attrs[key] = parseAttrValue(raw)
	}
	if level > 0 {
		attrs["level"] = level
	}
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	return e, nil
}

// parseAttrValue takes the JSON reading of a value when it has one, so
// numbers and booleans keep their types, and the raw string otherwise.
func parseAttrValue(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed
	}
	return raw
}
