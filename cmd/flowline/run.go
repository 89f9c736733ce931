// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/flowline-ci/flowline/cmd/flowline/cli"
	"github.com/flowline-ci/flowline/lib/artifact"
	"github.com/flowline-ci/flowline/lib/container"
	"github.com/flowline-ci/flowline/lib/engine"
	"github.com/flowline-ci/flowline/lib/forge"
	"github.com/flowline-ci/flowline/lib/git"
	"github.com/flowline-ci/flowline/lib/history"
	"github.com/flowline-ci/flowline/lib/pipelinedef"
	"github.com/flowline-ci/flowline/lib/registry"
	"github.com/flowline-ci/flowline/lib/report"
	"github.com/flowline-ci/flowline/lib/schema"
	"github.com/flowline-ci/flowline/lib/trigger"
)

// tokenEnvironmentVariable carries the forge API token for PR comment
// sinks. A flag would leak the token into process listings.
const tokenEnvironmentVariable = "FLOWLINE_FORGE_TOKEN"

func runCommand() *cli.Command {
	var (
		workspace    string
		profilePath  string
		eventType    string
		branch       string
		sha          string
		prNumber     int
		repo         string
		trunk        string
		registryHost string
		registryRepo string
		archivePath  string
		runLogPath   string
		historyPath  string
		stepTimeout  time.Duration
	)

	return &cli.Command{
		Name:    "run",
		Summary: "Execute a pipeline for a forge event",
		Usage:   "flowline run <pipeline.jsonc> [flags]",
		Description: `Execute a pipeline definition for one triggering event. Only pushes
to the trunk branch and pull requests targeting it are admitted.

The workspace holds the source checkout, artifact staging area, and
run archive. Report sinks print to stdout; with ` + tokenEnvironmentVariable + `
set, coverage summaries are also posted as a PR comment on pull
request events.`,
		Examples: []cli.Example{
			{
				Description: "Run the CI pipeline for a push to main",
				Command:     "flowline run ci.jsonc --event push --branch main --sha $(git rev-parse HEAD) --repo example/widgets",
			},
			{
				Description: "Run for a pull request, publishing images to a registry",
				Command:     "flowline run ci.jsonc --event pull_request --branch main --pr 42 --sha HEAD_SHA --repo example/widgets --registry registry.example.com",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&workspace, "workspace", "", "run workspace directory (default: a new temporary directory)")
			flagSet.StringVar(&profilePath, "profile", "", "container runtime profile YAML")
			flagSet.StringVar(&eventType, "event", "push", "event type: push or pull_request")
			flagSet.StringVar(&branch, "branch", "main", "branch pushed to, or PR target branch")
			flagSet.StringVar(&sha, "sha", "", "commit sha the event points at")
			flagSet.IntVar(&prNumber, "pr", 0, "pull request number (pull_request events)")
			flagSet.StringVar(&repo, "repo", "", "repository as owner/name, a URL, or a local path")
			flagSet.StringVar(&trunk, "trunk", "main", "trunk branch admitted by the trigger policy")
			flagSet.StringVar(&registryHost, "registry", "", "registry host for push-image steps")
			flagSet.StringVar(&registryRepo, "registry-repository", "", "registry repository (default: the --repo value)")
			flagSet.StringVar(&archivePath, "archive", "", "run archive path (default: <workspace>/run.flart)")
			flagSet.StringVar(&runLogPath, "run-log", "", "JSONL progress log path (default: <workspace>/run.jsonl)")
			flagSet.StringVar(&historyPath, "history-db", "", "SQLite database to record the run in")
			flagSet.DurationVar(&stepTimeout, "step-timeout", 0, "default per-step timeout (default 5m)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: flowline run <pipeline.jsonc> [flags]")
			}

			pipeline, err := pipelinedef.ReadFile(args[0])
			if err != nil {
				return err
			}

			event := schema.Event{
				Type:     schema.EventType(eventType),
				Branch:   branch,
				SHA:      sha,
				PRNumber: prNumber,
				Repo:     repo,
			}

			logger := cli.NewCommandLogger().With("command", "run", "pipeline", pipeline.Name)

			if workspace == "" {
				workspace, err = os.MkdirTemp("", "flowline-run-")
				if err != nil {
					return fmt.Errorf("creating workspace: %w", err)
				}
			}
			workspace, err = filepath.Abs(workspace)
			if err != nil {
				return fmt.Errorf("resolving workspace: %w", err)
			}
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return fmt.Errorf("creating workspace: %w", err)
			}
			if archivePath == "" {
				archivePath = filepath.Join(workspace, "run.flart")
			}
			if runLogPath == "" {
				runLogPath = filepath.Join(workspace, "run.jsonl")
			}

			profile := container.DefaultProfile()
			if profilePath != "" {
				profile, err = container.LoadProfile(profilePath)
				if err != nil {
					return err
				}
			}

			executor, err := container.New(container.Config{
				Workspace: workspace,
				Profile:   profile,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			store, err := artifact.NewStore(filepath.Join(workspace, "artifacts"))
			if err != nil {
				return err
			}

			var publisher *registry.Publisher
			if registryHost != "" {
				repository := registryRepo
				if repository == "" {
					repository = repo
				}
				publisher, err = registry.New(registry.Config{
					Host:       registryHost,
					Repository: repository,
					Runtime:    profile.Runtime,
					Logger:     logger,
				})
				if err != nil {
					return err
				}
			}

			thresholds := report.DefaultThresholds()
			sinks := map[string]artifact.Sink{
				"test-report":      report.NewTestReport(os.Stdout, logger),
				"coverage-summary": report.NewCoverageSummary(os.Stdout, thresholds, logger),
			}
			var forgeClient *forge.Client
			if token := os.Getenv(tokenEnvironmentVariable); token != "" {
				forgeClient, err = forge.NewClient(forge.Config{Token: token, Logger: logger})
				if err != nil {
					return err
				}
				sinks["pr-comment"] = report.NewPRComment(forgeClient, event, thresholds, logger)
			}

			runLog, err := engine.NewRunLog(runLogPath, logger)
			if err != nil {
				return err
			}
			defer runLog.Close()

			// Ctrl-C and SIGTERM cancel the run; the engine signals
			// running containers and waits out their grace periods.
			signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dispatcher := trigger.NewDispatcher(trigger.Config{Trunk: trunk, Logger: logger})
			runCtx, release, err := dispatcher.Begin(signalCtx, event)
			if err != nil {
				return err
			}
			defer release()

			runner, err := engine.New(engine.Config{
				Workspace:   workspace,
				Executor:    executor,
				Store:       store,
				Publisher:   publisher,
				Sinks:       sinks,
				ArchivePath: archivePath,
				RunLog:      runLog,
				Checkout: func(ctx context.Context, event schema.Event, path string) error {
					return git.CheckoutCommit(ctx, git.RemoteURL(event), event.SHA, path)
				},
				DefaultStepTimeout: stepTimeout,
				Logger:             logger,
			})
			if err != nil {
				return err
			}

			result, err := runner.Run(runCtx, pipeline, event)
			if err != nil {
				return err
			}

			if historyPath != "" {
				if err := recordRun(historyPath, result, logger); err != nil {
					logger.Error("recording run history failed", "error", err)
				}
			}

			// Commit statuses only apply to forge-hosted repositories
			// named as owner/name slugs; URL and local-path repos have
			// no status API.
			if forgeClient != nil && repoIsSlug(event.Repo) {
				status := commitStatusFor(pipeline.Name, result)
				if err := forgeClient.CreateCommitStatus(context.Background(), event.Repo, event.SHA, status); err != nil {
					logger.Error("posting commit status failed", "error", err)
				}
			}

			printRunSummary(result, archivePath)

			switch result.Status {
			case schema.StatusFailure:
				return &cli.ExitError{Code: 1}
			case schema.StatusCancelled:
				return &cli.ExitError{Code: 2}
			}
			return nil
		},
	}
}

// repoIsSlug reports whether repo names a forge repository as
// owner/name rather than a URL or a local path.
func repoIsSlug(repo string) bool {
	return repo != "" && !strings.Contains(repo, "://") && !strings.HasPrefix(repo, "/")
}

// commitStatusFor maps a run result to the status posted on the
// commit. The status context carries the pipeline name so several
// pipelines can report on the same commit.
func commitStatusFor(pipeline string, result *schema.PipelineResult) forge.CommitStatus {
	status := forge.CommitStatus{Context: "flowline/" + pipeline}
	switch result.Status {
	case schema.StatusSuccess:
		status.State = forge.StatusSuccess
		status.Description = "pipeline succeeded"
	case schema.StatusFailure:
		status.State = forge.StatusFailure
		status.Description = "pipeline failed"
	case schema.StatusCancelled:
		status.State = forge.StatusError
		status.Description = "run cancelled"
	default:
		status.State = forge.StatusPending
		status.Description = "run " + string(result.Status)
	}
	return status
}

func recordRun(path string, result *schema.PipelineResult, logger *slog.Logger) error {
	store, err := history.Open(history.Config{Path: path})
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Record(context.Background(), result)
	if err != nil {
		return err
	}
	logger.Info("run recorded in history", "id", id, "db", path)
	return nil
}

func printRunSummary(result *schema.PipelineResult, archivePath string) {
	fmt.Printf("\n%s: %s (%s)\n", result.Pipeline, result.Status, result.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tDURATION\tARTIFACTS\tERROR")
	for _, id := range sortedJobIDs(result.Jobs) {
		job := result.Jobs[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			id, job.Status, job.Duration.Round(time.Millisecond), len(job.Artifacts), job.Error)
	}
	tw.Flush()
	fmt.Printf("archive: %s\n", archivePath)
}

func sortedJobIDs(jobs map[string]schema.RunResult) []string {
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	// Stable output for scripting.
	slices.Sort(ids)
	return ids
}
