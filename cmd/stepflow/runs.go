package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded runs",
}

var (
	runsStatusFlag string
	runsFlowFlag   string
	runsSinceFlag  time.Duration
	runsLimitFlag  int
	runsJSONFlag   bool
	runsVacuumFlag bool
)

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := runFilter()
		if err != nil {
			return err
		}
		return withStore(cmd, func(st *store.LibSQLStore) error {
			runs, err := st.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if runsJSONFlag {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			return printRunSummaries(cmd.OutOrStdout(), runs)
		})
	},
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its step journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withStore(cmd, func(st *store.LibSQLStore) error {
			result, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			journal := store.NewEventLog(st, logger)
			events, err := journal.GetEvents(ctx, args[0], 0)
			if err != nil {
				return err
			}
			if _, err := journal.Replay(ctx, args[0]); err != nil {
				logger.Warn("journal is incomplete", slog.Any("error", err))
			}

			out := cmd.OutOrStdout()
			if runsJSONFlag {
				return writeJSON(out, struct {
					*schema.RunResult
					Journal []*store.StepEvent `json:"journal"`
				}{result, events})
			}
			printRunResult(out, result)
			printJournal(out, events)
			return nil
		})
	},
}

var deleteRunCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete runs and their journals",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withStore(cmd, func(st *store.LibSQLStore) error {
			for _, id := range args {
				if err := st.DeleteRun(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s run %s deleted\n", successStyle.Sprint(checkmark), id)
			}
			if runsVacuumFlag {
				return st.Vacuum(ctx)
			}
			return nil
		})
	},
}

func init() {
	listRunsCmd.Flags().StringVar(&runsStatusFlag, "status", "", "filter by status (SUCCEEDED, FAILED)")
	listRunsCmd.Flags().StringVar(&runsFlowFlag, "flow", "", "filter by flow name")
	listRunsCmd.Flags().DurationVar(&runsSinceFlag, "since", 0, "only runs started within this duration")
	listRunsCmd.Flags().IntVarP(&runsLimitFlag, "limit", "n", 20, "maximum number of runs")
	listRunsCmd.Flags().BoolVar(&runsJSONFlag, "json", false, "print as JSON")
	showRunCmd.Flags().BoolVar(&runsJSONFlag, "json", false, "print as JSON")
	deleteRunCmd.Flags().BoolVar(&runsVacuumFlag, "vacuum", false, "reclaim database space afterwards")

	runsCmd.AddCommand(listRunsCmd, showRunCmd, deleteRunCmd)
	rootCmd.AddCommand(runsCmd)
}

func runFilter() (store.RunFilter, error) {
	filter := store.RunFilter{FlowName: runsFlowFlag, Limit: runsLimitFlag}
	if runsStatusFlag != "" {
		status := schema.StepStatus(strings.ToUpper(runsStatusFlag))
		if status != schema.StepStatusSucceeded && status != schema.StepStatusFailed {
			return filter, fmt.Errorf("invalid status %q: want SUCCEEDED or FAILED", runsStatusFlag)
		}
		filter.Status = status
	}
	if runsSinceFlag > 0 {
		since := time.Now().Add(-runsSinceFlag)
		filter.Since = &since
	}
	return filter, nil
}

func withStore(cmd *cobra.Command, fn func(*store.LibSQLStore) error) error {
	st, err := openStore(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
