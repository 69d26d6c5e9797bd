package main

import (
	"fmt"

	"github.com/aretw0/casefile/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [call-id]",
	Short: "Print the step graph as a Mermaid flowchart",
	Long:  `Prints the call flow as Mermaid. With a call ID, the steps the call visited and its current step are highlighted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var overlay *graph.Overlay
		if len(args) == 1 {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sc, err := app.Sessions.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load call '%s': %w", args[0], err)
			}
			overlay = graph.OverlayFor(sc)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
