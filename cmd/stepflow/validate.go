package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/flowfile"
)

var validateJSONFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file>",
	Short: "Check a flow without running it",
	Long:  `Checks the action graph, the flow schema, piece references and template references. Warnings do not fail validation.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args[0])
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSONFlag, "json", false, "print the validation result as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, path string) error {
	flow, err := flowfile.LoadFlow(path)
	if err != nil {
		return err
	}

	rt, err := newValidationRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := rt.validator.Validate(flow)
	out := cmd.OutOrStdout()
	if validateJSONFlag {
		if err := writeJSON(out, result); err != nil {
			return err
		}
		if !result.Valid() {
			return errSilent
		}
		return nil
	}

	if !printValidation(out, result) {
		return errSilent
	}
	fmt.Fprintf(out, "%s %s is valid\n", successStyle.Sprint(checkmark), path)
	return nil
}
