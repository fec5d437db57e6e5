// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"tail", "tial", 2},
		{"stats", "stast", 2},
		{"replay", "repaly", 2},
		{"forward", "forwrad", 2},
		{"kitten", "sitting", 3},
		{"emit", "version", 7},
	}

	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "tail"},
		{Name: "stats"},
		{Name: "forward"},
		{Name: "replay"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"tial", "tail"},
		{"stast", "stats"},
		{"repla", "replay"},
		{"frward", "forward"},
		{"zzzzzzzzzz", ""},
	}

	for _, test := range tests {
		if got := suggestCommand(test.input, commands); got != test.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("address", "", "hub address")
		flagSet.Bool("verify", false, "verify digests")
		flagSet.Int("since-seq", 0, "sequence filter")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"close typo", []string{"--addrss", "x"}, "--address"},
		{"typo with equals", []string{"--verfiy=true"}, "--verify"},
		{"hyphenated", []string{"--since-sq", "5"}, "--since-seq"},
		{"distant input", []string{"--qqqqqqqqq"}, ""},
		{"defined flag skipped", []string{"--verify", "--addrss"}, "--address"},
		{"no flags in args", []string{"positional"}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := suggestFlag(test.args, newFlags()); got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
