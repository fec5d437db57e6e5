// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// pulse is the command-line client for the pulse hub: it streams and
// publishes events, inspects collector metrics, ships sidecar batches
// over the ingest socket, replays and reports on archives, and runs
// the live terminal dashboard.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/lib/config"
)

func main() {
	if err := run(); err != nil {
		// ExitError carries a code for commands that already reported
		// their failure on stdout/stderr.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "pulse",
		Description: "pulse talks to a running pulse-hub over HTTP and the ingest socket,\n" +
			"and reads event archives directly from disk.\n\n" +
			"The hub address and paths come from the config file named by\n" +
			"PULSE_CONFIG (falling back to built-in defaults); every command\n" +
			"also accepts explicit flags.",
		Examples: []cli.Example{
			{Description: "Follow the live event stream", Command: "pulse tail"},
			{Description: "Show hub and collector statistics", Command: "pulse stats"},
			{Description: "Render a report from an archive", Command: "pulse report ~/.cache/pulse/archive"},
		},
		Subcommands: []*cli.Command{
			newTailCommand(),
			newStatsCommand(),
			newEmitCommand(),
			newForwardCommand(),
			newReplayCommand(),
			newSimulateCommand(),
			newReportCommand(),
			newTopCommand(),
			newVersionCommand(),
		},
	}
}

// defaultHubURL derives the hub base URL from configuration. A broken
// PULSE_CONFIG falls back to the stock listen address; commands prefer
// a working default over refusing to construct their flags.
func defaultHubURL() string {
	if cfg, err := config.Load(); err == nil {
		return "http://" + cfg.ListenAddress
	}
	return "http://127.0.0.1:8001"
}

// defaultIngestSocket derives the ingest socket path from configuration.
func defaultIngestSocket() string {
	if cfg, err := config.Load(); err == nil {
		return cfg.Ingest.SocketPath
	}
	return filepath.Join(defaultRoot(), "ingest.sock")
}

// defaultArchiveDir derives the archive directory from configuration.
// Empty when the hub has archiving disabled; commands that read
// archives then require an explicit directory argument.
func defaultArchiveDir() string {
	if cfg, err := config.Load(); err == nil {
		return cfg.Archive.Directory
	}
	return ""
}

func defaultRoot() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".cache", "pulse")
}
