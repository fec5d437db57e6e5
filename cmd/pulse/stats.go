// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
	"github.com/feynmancraft/pulse/metrics"
)

// requestTimeout bounds the unary hub calls made by one-shot commands.
const requestTimeout = 10 * time.Second

func newStatsCommand() *cli.Command {
	var (
		address string
		jsonOut bool
	)
	return &cli.Command{
		Name:    "stats",
		Summary: "Show event log and collector statistics",
		Usage:   "pulse stats [flags]",
		Examples: []cli.Example{
			{Description: "Human-readable summary", Command: "pulse stats"},
			{Description: "Machine-readable, for scripts", Command: "pulse stats --json"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			flags.StringVar(&address, "address", defaultHubURL(), "hub base URL")
			flags.BoolVar(&jsonOut, "json", false, "emit JSON instead of text")
			return flags
		},
		Run: func(args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			client := service.NewClient(address)
			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			system, err := client.SystemStats(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				return cli.WriteJSON(struct {
					Log    event.Stats         `json:"log"`
					System metrics.SystemStats `json:"system"`
				}{health.Log, system})
			}
			printStats(address, health, system)
			return nil
		},
	}
}

func printStats(address string, health service.HealthInfo, system metrics.SystemStats) {
	fmt.Printf("%s %s at %s (%s)\n\n", health.Service, health.Version, address, health.Status)

	w := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Event log")
	fmt.Fprintf(w, "  published\t%d\n", health.Log.Published)
	fmt.Fprintf(w, "  dropped\t%d\n", health.Log.Dropped)
	fmt.Fprintf(w, "  ring\t%d/%d (%s)\n", health.Log.RingSize, health.Log.RingCapacity, seqRange(health.Log))
	fmt.Fprintf(w, "  subscribers\t%d\n", health.Log.ActiveSubscribers)
	fmt.Fprintf(w, "  uptime\t%s\n", formatSeconds(health.Log.UptimeSeconds))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Collector")
	fmt.Fprintf(w, "  calls\t%d (%d in flight)\n", system.TotalCalls, system.ConcurrentCalls)
	fmt.Fprintf(w, "  errors\t%d (%.1f%% success)\n", system.TotalErrors, system.OverallSuccessRate)
	fmt.Fprintf(w, "  avg duration\t%s\n", formatSeconds(system.AvgDuration))
	fmt.Fprintf(w, "  tools\t%d\n", system.ActiveTools)
	w.Flush()
}

// seqRange renders the ring's sequence window, "seq 12..4711" or "empty".
func seqRange(stats event.Stats) string {
	if stats.OldestSeq == nil || stats.NewestSeq == nil {
		return "empty"
	}
	return fmt.Sprintf("seq %d..%d", *stats.OldestSeq, *stats.NewestSeq)
}
