// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "flowline",
		Subcommands: []*Command{
			{
				Name: "validate",
				Run: func(args []string) error {
					called = "validate"
					return nil
				},
			},
			{
				Name: "run",
				Run: func(args []string) error {
					called = "run"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"run"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "run" {
		t.Errorf("dispatched to %q, want %q", called, "run")
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var workspace string
	var received []string

	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&workspace, "workspace", "", "run workspace")
			return flagSet
		},
		Run: func(args []string) error {
			received = args
			return nil
		},
	}

	if err := command.Execute([]string{"--workspace", "/tmp/w", "ci.jsonc"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if workspace != "/tmp/w" {
		t.Errorf("workspace = %q", workspace)
	}
	if len(received) != 1 || received[0] != "ci.jsonc" {
		t.Errorf("args = %v", received)
	}
}

func TestExecuteSuggestsCommand(t *testing.T) {
	root := &Command{
		Name: "flowline",
		Subcommands: []*Command{
			{Name: "history", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"histroy"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "history"`) {
		t.Errorf("error = %q, want suggestion", err)
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.String("workspace", "", "run workspace")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--workspce", "/tmp/w"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "--workspace") {
		t.Errorf("error = %q, want flag suggestion", err)
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "flowline",
		Summary: "pipeline runner",
		Subcommands: []*Command{
			{Name: "validate", Summary: "check a pipeline definition"},
			{Name: "run", Summary: "execute a pipeline"},
		},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	help := buffer.String()

	for _, want := range []string{"validate", "check a pipeline definition", "run", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"histroy", "history", 2},
		{"graph", "run", 4},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
