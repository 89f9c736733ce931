// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/flowline-ci/flowline/cmd/flowline/cli"
	"github.com/flowline-ci/flowline/lib/history"
	"github.com/flowline-ci/flowline/lib/schema"
)

func historyCommand() *cli.Command {
	var (
		databasePath string
		pipeline     string
		branch       string
		status       string
		limit        int
	)

	return &cli.Command{
		Name:    "history",
		Summary: "List recorded runs, or show one run by ID",
		Usage:   "flowline history [run-id] [flags]",
		Examples: []cli.Example{
			{Description: "List the last 20 runs of the ci pipeline", Command: "flowline history --pipeline ci --limit 20"},
			{Description: "Show one run in detail", Command: "flowline history 17"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.StringVar(&databasePath, "db", "flowline-history.db", "SQLite history database")
			flagSet.StringVar(&pipeline, "pipeline", "", "filter by pipeline name")
			flagSet.StringVar(&branch, "branch", "", "filter by branch")
			flagSet.StringVar(&status, "status", "", "filter by overall status")
			flagSet.IntVar(&limit, "limit", 50, "maximum runs to list")
			return flagSet
		},
		Run: func(args []string) error {
			store, err := history.Open(history.Config{Path: databasePath})
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("run ID must be a number, got %q", args[0])
				}
				record, err := store.Run(context.Background(), id)
				if err != nil {
					return err
				}
				printRunRecord(record)
				return nil
			}
			if len(args) > 1 {
				return fmt.Errorf("usage: flowline history [run-id] [flags]")
			}

			records, err := store.List(context.Background(), history.Filter{
				Pipeline: pipeline,
				Branch:   branch,
				Status:   schema.Status(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tPIPELINE\tEVENT\tBRANCH\tSHA\tSTATUS\tSTARTED\tDURATION")
			for _, record := range records {
				result := record.Result
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					record.ID,
					result.Pipeline,
					result.Event.Type,
					result.Event.Branch,
					result.Event.ShortSHA(),
					result.Status,
					result.Started.Format(time.RFC3339),
					result.Duration.Round(time.Millisecond),
				)
			}
			return tw.Flush()
		},
	}
}

func printRunRecord(record history.RunRecord) {
	result := record.Result
	fmt.Printf("run %d: %s %s\n", record.ID, result.Pipeline, result.Status)
	fmt.Printf("event: %s %s @ %s\n", result.Event.Type, result.Event.Branch, result.Event.ShortSHA())
	if result.Event.PRNumber > 0 {
		fmt.Printf("pull request: #%d\n", result.Event.PRNumber)
	}
	fmt.Printf("started: %s, took %s\n\n", result.Started.Format(time.RFC3339), result.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tDURATION\tARTIFACTS\tERROR")
	for _, id := range sortedJobIDs(result.Jobs) {
		job := result.Jobs[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			id, job.Status, job.Duration.Round(time.Millisecond), len(job.Artifacts), job.Error)
	}
	tw.Flush()
}
