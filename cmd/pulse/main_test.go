// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := rootCommand()

	want := []string{
		"tail", "stats", "emit", "forward", "replay",
		"simulate", "report", "top", "version",
	}
	if len(root.Subcommands) != len(want) {
		t.Fatalf("root has %d subcommands, want %d", len(root.Subcommands), len(want))
	}
	for i, name := range want {
		sub := root.Subcommands[i]
		if sub.Name != name {
			t.Errorf("subcommand %d = %q, want %q", i, sub.Name, name)
		}
		if sub.Summary == "" {
			t.Errorf("%s has no summary", sub.Name)
		}
		if sub.Run == nil {
			t.Errorf("%s has no run function", sub.Name)
		}
	}
}

func TestSubcommandFlagSets(t *testing.T) {
	for _, sub := range rootCommand().Subcommands {
		if sub.Flags == nil {
			continue
		}
		flags := sub.Flags()
		if flags == nil {
			t.Errorf("%s declares a nil flag set", sub.Name)
		}
	}
}
