package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/briefing/internal/orchestrator"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		all       bool
		scheduled bool
	)
	cmd := &cobra.Command{
		Use:   "run [pipeline-id]",
		Short: "Execute a pipeline end to end",
		Long: `Execute a pipeline and store the resulting report.

Examples:
  # Run one pipeline
  briefing run --user u1 8f14e45f

  # Run every pipeline the user owns, concurrently
  briefing run --user u1 --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(flags); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if all {
				return runAll(ctx, a, flags.UserID, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			runType := orchestrator.RunManual
			if scheduled {
				runType = orchestrator.RunScheduled
			}
			return runOne(ctx, a, flags.UserID, args[0], runType, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every pipeline of the user as a batch")
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "record the run as scheduled instead of manual")
	return cmd
}

func runOne(ctx context.Context, a *app, userID, pipelineID, runType string, stdout, stderr io.Writer) error {
	progress := orchestrator.NewProgressReporter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range progress.Subscribe() {
			if ev.Status == orchestrator.ProgressWorking {
				fmt.Fprintln(stderr, orchestrator.FormatStageHeader(pipelineID, ev.Stage))
				continue
			}
			fmt.Fprintln(stderr, orchestrator.FormatProgress(ev))
		}
	}()

	summary, err := a.exec.Run(ctx, userID, pipelineID, orchestrator.RunOptions{RunType: runType, Progress: progress})
	progress.Close()
	<-done
	if err != nil {
		return err
	}
	printSummary(stdout, summary)
	return nil
}

func runAll(ctx context.Context, a *app, userID string, stdout, stderr io.Writer) error {
	pipelines, err := a.store.ListPipelines(ctx, userID)
	if err != nil {
		return err
	}
	if len(pipelines) == 0 {
		fmt.Fprintln(stdout, "No pipelines found.")
		return nil
	}
	items := make([]orchestrator.BatchItem, len(pipelines))
	for i, p := range pipelines {
		items[i] = orchestrator.BatchItem{UserID: userID, PipelineID: p.ID}
	}

	results := orchestrator.NewBatch(a.exec, a.cfg.Server.BatchLimit, func(ev orchestrator.ProgressEvent) {
		fmt.Fprintf(stderr, "[%s]%s\n", ev.RunID, orchestrator.FormatProgress(ev))
	}).Run(ctx, items)

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stdout, "%s: error: %v\n", r.Item.PipelineID, r.Err)
			continue
		}
		printSummary(stdout, r.Summary)
	}
	if failed := orchestrator.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d pipelines could not run", len(failed), len(results))
	}
	return nil
}

func printSummary(w io.Writer, s *orchestrator.RunSummary) {
	fmt.Fprintf(w, "%s: report %s [%s] %q, %d article(s), %s\n",
		s.PipelineName, s.ReportID, s.Status, s.Title, s.ArticleCount, s.Duration.Round(time.Millisecond))
	if s.Artifact != nil {
		fmt.Fprintf(w, "  artifact: %s\n", s.Artifact.Path)
	}
	if s.Delivery != nil {
		fmt.Fprintf(w, "  delivery: %s %s\n", s.Delivery.Channel, s.Delivery.Status)
	}
}
