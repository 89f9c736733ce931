// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/flowline-ci/flowline/cmd/flowline/cli"
	"github.com/flowline-ci/flowline/lib/graph"
	"github.com/flowline-ci/flowline/lib/pipelinedef"
)

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:    "graph",
		Summary: "Print the job graph in topological run order",
		Usage:   "flowline graph <pipeline.jsonc>",
		Description: `Print each job in an order the scheduler could run them, with its
dependencies and guard. A dry inspection of the load-time graph; no
containers are started.`,
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: flowline graph <pipeline.jsonc>")
			}

			pipeline, err := pipelinedef.ReadFile(args[0])
			if err != nil {
				return err
			}
			jobGraph, err := graph.New(pipeline.Jobs)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "JOB\tDEPENDS ON\tGUARD")
			for _, id := range jobGraph.TopologicalOrder() {
				job, _ := jobGraph.Job(id)
				dependencies := "-"
				if len(job.DependsOn) > 0 {
					dependencies = strings.Join(job.DependsOn, ", ")
				}
				guard := job.Guard
				if guard == "" {
					guard = "success()"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", id, dependencies, guard)
			}
			return tw.Flush()
		},
	}
}
