package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/flowfile"
)

var (
	runConfigsFlag string
	runTriggerFlag string
	runIDFlag      string
	runJSONFlag    bool
)

var runCmd = &cobra.Command{
	Use:   "run <flow-file>",
	Short: "Validate and execute a flow",
	Long: `Loads a flow from a YAML or JSON file, validates it and executes it once.
Configs and trigger output are read from YAML or JSON documents; "-" reads stdin.
The command exits non-zero when the run fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlow(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigsFlag, "configs", "c", "", "configs document exposed as ${configs.*}")
	runCmd.Flags().StringVarP(&runTriggerFlag, "trigger", "t", "", "trigger output document exposed as ${<trigger>.*}")
	runCmd.Flags().StringVar(&runIDFlag, "run-id", "", "run id (generated when empty)")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runFlow(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	flow, err := flowfile.LoadFlow(path)
	if err != nil {
		return err
	}
	configs, err := flowfile.LoadDocument(runConfigsFlag)
	if err != nil {
		return err
	}
	var trigger any
	if runTriggerFlag != "" {
		doc, err := flowfile.LoadDocument(runTriggerFlag)
		if err != nil {
			return err
		}
		trigger = doc
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("release resources", slog.Any("error", err))
		}
	}()

	if !printValidation(os.Stderr, rt.validator.Validate(flow)) {
		return errSilent
	}

	result, err := rt.executor.Run(ctx, engine.RunRequest{
		Flow:          flow,
		Configs:       configs,
		TriggerOutput: trigger,
		RunID:         runIDFlag,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSONFlag {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printRunResult(out, result)
	}
	if !result.Succeeded() {
		return errSilent
	}
	return nil
}
