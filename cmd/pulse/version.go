// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/lib/version"
)

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "pulse version",
		Run: func(args []string) error {
			fmt.Printf("pulse %s\n", version.Full())
			return nil
		},
	}
}
