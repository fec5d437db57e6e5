// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
)

func newTopCommand() *cli.Command {
	var address string
	return &cli.Command{
		Name:    "top",
		Summary: "Live terminal dashboard of tools and events",
		Usage:   "pulse top [flags]",
		Description: "top is a full-screen dashboard: hub counters in the header, the\n" +
			"collector's per-tool table, and a scrolling event feed. p pauses\n" +
			"the feed, s cycles the table sort, q quits.",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("top", pflag.ContinueOnError)
			flags.StringVar(&address, "address", defaultHubURL(), "hub base URL")
			return flags
		},
		Run: func(args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			client := service.NewClient(address)
			events := make(chan event.Event, 64)
			go pumpEvents(ctx, client, events)

			program := tea.NewProgram(newDashboardModel(client, address, events), tea.WithAltScreen())
			_, err := program.Run()
			return err
		},
	}
}

// pumpEvents feeds the hub stream into events, reconnecting with
// doubling backoff and resuming after the last delivered sequence.
// Closes events when ctx ends.
func pumpEvents(ctx context.Context, client *service.Client, events chan<- event.Event) {
	defer close(events)

	var last uint64
	backoff := tailInitialBackoff
	for {
		seq, _ := client.Stream(ctx, last, func(e event.Event) error {
			select {
			case events <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if seq > last {
			last = seq
			backoff = tailInitialBackoff
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, tailMaxBackoff)
	}
}
