// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_DispatchesSubcommand(t *testing.T) {
	var gotArgs []string
	var gotName string
	root := &Command{
		Name: "shiftctl",
		Subcommands: []*Command{
			{
				Name: "session",
				Subcommands: []*Command{
					{
						Name: "create",
						Flags: func() *pflag.FlagSet {
							flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
							flagSet.StringVar(&gotName, "name", "", "display name")
							return flagSet
						},
						Run: func(args []string) error {
							gotArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"session", "create", "--name", "guest", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotName != "guest" {
		t.Errorf("--name = %q, want guest", gotName)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", gotArgs)
	}
}

func TestCommand_SuggestsNearestCommand(t *testing.T) {
	root := &Command{
		Name: "shiftctl",
		Subcommands: []*Command{
			{Name: "status", Run: func([]string) error { return nil }},
			{Name: "sessions", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"stauts"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "status"`) {
		t.Errorf("Execute(stauts) = %v, want a suggestion for status", err)
	}
}

func TestCommand_SuggestsNearestFlag(t *testing.T) {
	command := &Command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 20, "records to show")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}
	err := command.Execute([]string{"--limt", "5"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --limit") {
		t.Errorf("Execute(--limt) = %v, want a suggestion for --limit", err)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"status", "status", 0},
		{"stauts", "status", 2},
		{"monitor", "monitors", 1},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestTable_Render(t *testing.T) {
	table := NewTable("ID", "STATE")
	table.Row("session-1", "occupied")
	table.Row("s2", "pending")

	var out bytes.Buffer
	table.Render(&out)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("rendered %d lines, want 3:\n%s", len(lines), out.String())
	}
	column := strings.Index(lines[1], "occupied")
	if column < 0 || strings.Index(lines[2], "pending") != column {
		t.Errorf("STATE column not aligned:\n%s", out.String())
	}
}

func TestJSONOutput_NormalizesNilSlice(t *testing.T) {
	var out bytes.Buffer
	var entries []string
	if err := WriteJSON(&out, normalizeNilSlice(entries)); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "[]" {
		t.Errorf("nil slice encoded as %s, want []", got)
	}
}
