// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/archive"
)

func newReplayCommand() *cli.Command {
	var (
		types    []string
		trace    string
		sinceSeq uint64
		verify   bool
		jsonOut  bool
	)
	return &cli.Command{
		Name:    "replay",
		Summary: "Read events back from an archive",
		Usage:   "pulse replay [directory] [flags]",
		Description: "replay reads archived segments in sequence order and prints the\n" +
			"events, pretty on a terminal and as JSON lines otherwise. The\n" +
			"directory defaults to the config's archive.directory. With --verify\n" +
			"each segment's digest is checked; corruption exits with code 2.",
		Examples: []cli.Example{
			{Description: "One workflow, human readable", Command: "pulse replay --trace tr-9f2e41ac"},
			{Description: "Stage events from a specific directory", Command: "pulse replay ~/.cache/pulse/archive --type step."},
			{Description: "Integrity check for backups", Command: "pulse replay --verify > /dev/null"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			flags.StringArrayVar(&types, "type", nil, "type filter, repeatable; a trailing dot matches the family")
			flags.StringVar(&trace, "trace", "", "only events of this workflow trace")
			flags.Uint64Var(&sinceSeq, "since-seq", 0, "only events after this sequence")
			flags.BoolVar(&verify, "verify", false, "verify segment digests while reading")
			flags.BoolVar(&jsonOut, "json", false, "force JSON lines even on a terminal")
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

			pretty := !jsonOut && term.IsTerminal(int(os.Stdout.Fd()))
			styles := plainEventStyles
			if pretty {
				styles = newEventStyles()
			}

			count := 0
			filter := archive.Filter{
				SinceSeq: sinceSeq,
				Types:    types,
				TraceID:  trace,
				Verify:   verify,
			}
			err = reader.Read(filter, func(e event.Event) error {
				count++
				line := ""
				if pretty {
					line = formatEventLine(e, styles)
				} else {
					encoded, err := json.Marshal(e)
					if err != nil {
						return err
					}
					line = string(encoded)
				}
				_, err := fmt.Println(line)
				return err
			})
			if err != nil {
				if verify {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					return &cli.ExitError{Code: 2}
				}
				return err
			}
			if pretty {
				fmt.Fprintf(os.Stderr, "%d events\n", count)
			}
			return nil
		},
	}
}
