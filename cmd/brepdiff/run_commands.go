package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"brepdiff/internal/logging"
	"brepdiff/internal/runstore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var runsDir string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Record and inspect experiment runs",
	}
	runCmd.PersistentFlags().StringVar(&runsDir, "runs-dir", ".brepdiff/runs", "Directory holding the run database")

	runCmd.AddCommand(newRunRecordCommand(ctx, &runsDir))
	runCmd.AddCommand(newRunListCommand(&runsDir))
	runCmd.AddCommand(newRunShowCommand(&runsDir))
	runCmd.AddCommand(newRunPruneCommand(&runsDir))
	runCmd.AddCommand(newRunStatsCommand(&runsDir))

	return runCmd
}

func newRunRecordCommand(ctx *commandContext, runsDir *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Persist the current configuration as a new run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			store, err := runstore.Open(*runsDir)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Record(cmd.Context(), name, cfg)
			if err != nil {
				return err
			}
			logger.Info("recorded run",
				"run_id", run.ID,
				"name", run.Name,
				"dataset", run.Dataset,
				"batch_size", run.BatchSize,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded run %s (%s, dataset %s)\n", run.ID, run.Name, run.Dataset)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "run", "Human-readable run name")
	return cmd
}

func newRunListCommand(runsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:         "list",
		Short:       "List recorded runs, newest first",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.Open(*runsDir)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			if isTerminal(out) {
				fmt.Fprintln(out, runTable(runs))
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.ID,
					run.Name,
					run.Dataset,
					run.BatchSize,
					run.TrainingTimesteps,
					run.CreatedAt.Local().Format(time.DateTime),
				)
			}
			return nil
		},
	}
}

func newRunShowCommand(runsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:         "show <run-id>",
		Short:       "Print the configuration snapshot of a recorded run",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.Open(*runsDir)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}

			var snapshot map[string]any
			if err := json.Unmarshal([]byte(run.ConfigJSON), &snapshot); err != nil {
				return fmt.Errorf("decode stored snapshot: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":         run.ID,
				"name":       run.Name,
				"created_at": run.CreatedAt,
				"config":     snapshot,
			})
		},
	}
}

func newRunPruneCommand(runsDir *string) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:         "prune",
		Short:       "Delete all but the newest runs",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.Open(*runsDir)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs (kept %d)\n", removed, keep)
			return nil
		},
	}

	cmd.Flags().IntVarP(&keep, "keep", "k", 10, "Number of newest runs to keep")
	return cmd
}

func newRunStatsCommand(runsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:         "stats",
		Short:       "Show run counts per dataset",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.Open(*runsDir)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			datasets := make([]string, 0, len(stats))
			for dataset := range stats {
				datasets = append(datasets, dataset)
			}
			sort.Strings(datasets)
			for _, dataset := range datasets {
				fmt.Fprintf(out, "%s: %d\n", dataset, stats[dataset])
			}
			return nil
		},
	}
}
