package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/diagram"
	"github.com/rendis/stepflow/internal/flowfile"
	"github.com/rendis/stepflow/internal/store"
)

var (
	graphFormatFlag string
	graphRunFlag    string
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-file>",
	Short: "Render a flow as a Mermaid or ASCII diagram",
	Long:  `Renders the action chain of a flow. With --run, step outcomes recorded in that run's journal are overlaid.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, err := flowfile.LoadFlow(args[0])
		if err != nil {
			return err
		}

		var overlay diagram.Overlay
		if graphRunFlag != "" {
			err := withStore(cmd, func(st *store.LibSQLStore) error {
				events, err := st.GetEvents(cmd.Context(), graphRunFlag, 0)
				if err != nil {
					return err
				}
				overlay = diagram.OverlayFromEvents(events)
				return nil
			})
			if err != nil {
				return err
			}
		}

		model, err := diagram.Build(flow, overlay)
		if err != nil {
			return err
		}
		return renderDiagram(cmd.OutOrStdout(), model, graphFormatFlag)
	},
}

func init() {
	graphCmd.Flags().StringVarP(&graphFormatFlag, "format", "f", "mermaid", "output format (mermaid, ascii)")
	graphCmd.Flags().StringVar(&graphRunFlag, "run", "", "overlay the outcome of a recorded run")
	rootCmd.AddCommand(graphCmd)
}

func renderDiagram(w io.Writer, model *diagram.DiagramModel, format string) error {
	switch format {
	case "mermaid":
		_, err := io.WriteString(w, diagram.RenderMermaid(model))
		return err
	case "ascii":
		_, err := io.WriteString(w, diagram.RenderASCII(model))
		return err
	default:
		return fmt.Errorf("unknown format %q: want mermaid or ascii", format)
	}
}
