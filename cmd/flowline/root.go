// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/flowline-ci/flowline/cmd/flowline/cli"
)

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "flowline",
		Description: `Flowline: container-native CI pipeline runner.

Execute dependency-graphed pipelines of container jobs triggered by
forge events, with artifact interchange, coverage reporting, and
guarded image publication.`,
		Subcommands: []*cli.Command{
			validateCommand(),
			graphCommand(),
			runCommand(),
			historyCommand(),
		},
	}
}
