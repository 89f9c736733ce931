// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/flowline-ci/flowline/cmd/flowline/cli"
	"github.com/flowline-ci/flowline/lib/graph"
	"github.com/flowline-ci/flowline/lib/pipelinedef"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Check a pipeline definition for structural issues",
		Usage:   "flowline validate <pipeline.jsonc>",
		Description: `Parse a pipeline definition and report every structural issue found,
not just the first: unknown actions, missing parameters, undeclared
permissions, invalid build configurations, and dependency cycles.`,
		Examples: []cli.Example{
			{Description: "Validate the CI pipeline", Command: "flowline validate ci.jsonc"},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: flowline validate <pipeline.jsonc>")
			}

			pipeline, err := pipelinedef.ReadFile(args[0])
			if err != nil {
				return err
			}

			issues := pipelinedef.Validate(pipeline)
			if len(issues) == 0 {
				// Structural checks passed; the graph check needs
				// well-formed jobs, so it runs second.
				if _, err := graph.New(pipeline.Jobs); err != nil {
					issues = append(issues, err.Error())
				}
			}

			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "%s: %s\n", args[0], issue)
				}
				return &cli.ExitError{Code: 1}
			}

			fmt.Printf("%s: ok (%d jobs)\n", pipeline.Name, len(pipeline.Jobs))
			return nil
		},
	}
}
