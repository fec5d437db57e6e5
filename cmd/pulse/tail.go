// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/service"
)

const (
	tailInitialBackoff = time.Second
	tailMaxBackoff     = 30 * time.Second
)

func newTailCommand() *cli.Command {
	var (
		address string
		since   uint64
		jsonOut bool
	)
	return &cli.Command{
		Name:    "tail",
		Summary: "Follow the live event stream",
		Usage:   "pulse tail [type-prefix...] [flags]",
		Description: "tail follows the hub's event stream, one event per line, colorized\n" +
			"when stdout is a terminal. Positional arguments filter by type: an\n" +
			"exact name, or a family prefix ending in a dot, so `pulse tail tool.\n" +
			"job.error` shows tool traffic plus failures. Disconnects reconnect\n" +
			"automatically, resuming after the last delivered sequence.",
		Examples: []cli.Example{
			{Description: "Everything as it happens", Command: "pulse tail"},
			{Description: "Tool calls and job failures only", Command: "pulse tail tool. job.error"},
			{Description: "Raw JSON frames for jq", Command: "pulse tail --json | jq .type"},
			{Description: "Catch up after a known sequence, then follow", Command: "pulse tail --since 4711"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			flags.StringVar(&address, "address", defaultHubURL(), "hub base URL")
			flags.Uint64Var(&since, "since", 0, "resume after this sequence (0 starts live)")
			flags.BoolVar(&jsonOut, "json", false, "print raw JSON frames, one per line")
			return flags
		},
		Run: func(args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			styles := plainEventStyles
			if !jsonOut && term.IsTerminal(int(os.Stdout.Fd())) {
				styles = newEventStyles()
			}
			return tailStream(ctx, service.NewClient(address), tailOptions{
				Since:  since,
				Types:  args,
				JSON:   jsonOut,
				Styles: styles,
			}, os.Stdout)
		},
	}
}

type tailOptions struct {
	Since  uint64
	Types  []string
	JSON   bool
	Styles *eventStyles
}

// tailStream follows the hub stream until ctx ends, reconnecting with
// doubling backoff and resuming after the last delivered sequence.
func tailStream(ctx context.Context, client *service.Client, opts tailOptions, out io.Writer) error {
	printer := &tailPrinter{types: opts.Types, json: opts.JSON, styles: opts.Styles, out: out}
	logger := cli.NewCommandLogger().With("command", "tail")

	last := opts.Since
	backoff := tailInitialBackoff
	for {
		seq, err := client.Stream(ctx, last, printer.print)
		if seq > last {
			last = seq
			backoff = tailInitialBackoff
		}
		if printer.writeErr != nil {
			// Stdout went away. A closed pipe is the normal end of
			// `pulse tail | head`, not an error worth reporting.
			if errors.Is(printer.writeErr, syscall.EPIPE) {
				return nil
			}
			return printer.writeErr
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			logger.Info("stream closed, reconnecting", "resume_after", last)
		} else {
			logger.Warn("stream disconnected", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, tailMaxBackoff)
	}
}

// tailPrinter writes matching events to out, one line each. Heartbeats
// are dropped in line mode and kept in JSON mode, where the raw feed is
// the point.
type tailPrinter struct {
	types    []string
	json     bool
	styles   *eventStyles
	out      io.Writer
	writeErr error
}

func (p *tailPrinter) print(e event.Event) error {
	if !p.json && e.Type == event.TypeHeartbeat {
		return nil
	}
	if !matchesType(p.types, e.Type) {
		return nil
	}

	var err error
	if p.json {
		var line []byte
		if line, err = json.Marshal(e); err != nil {
			return nil
		}
		_, err = fmt.Fprintln(p.out, string(line))
	} else {
		_, err = fmt.Fprintln(p.out, formatEventLine(e, p.styles))
	}
	if err != nil {
		p.writeErr = err
	}
	return err
}
