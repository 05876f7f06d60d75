package main

import (
	"github.com/spf13/cobra"
)

var piecesJSONFlag bool

var piecesCmd = &cobra.Command{
	Use:   "pieces",
	Short: "List registered pieces and their actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newValidationRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		if piecesJSONFlag {
			return writeJSON(cmd.OutOrStdout(), rt.registry.List())
		}
		printPieces(cmd.OutOrStdout(), rt.registry.List())
		return nil
	},
}

func init() {
	piecesCmd.Flags().BoolVar(&piecesJSONFlag, "json", false, "print as JSON")
	rootCmd.AddCommand(piecesCmd)
}
