package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/casefile/internal/presentation/tui"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/spf13/cobra"
)

var callerCmd = &cobra.Command{
	Use:   "caller",
	Short: "Inspect the enrichment cache",
}

var callerShowCmd = &cobra.Command{
	Use:   "show <ani>",
	Short: "Show a caller record with the freshness of each field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		lookup, err := app.Cache.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !lookup.Found {
			return fmt.Errorf("%w: %s", domain.ErrCallerNotFound, args[0])
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(lookup.Record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return render(cmd, tui.CallerMarkdown(lookup.Record, lookup.Staleness))
	},
}

var callerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every cached caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		anis, err := app.Callers().List(cmd.Context())
		if err != nil {
			return err
		}
		if len(anis) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No callers cached.")
			return nil
		}
		for _, ani := range anis {
			rec, err := app.Callers().Get(cmd.Context(), ani)
			if errors.Is(err, domain.ErrCallerNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			last := "never"
			if !rec.LastCallAt.IsZero() {
				last = rec.LastCallAt.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "- %s  %s  (last call: %s)\n", ani, rec.OwnerName, last)
		}
		return nil
	},
}

// render writes markdown through glamour when stdout is a terminal.
func render(cmd *cobra.Command, markdown string) error {
	out, err := tui.NewRenderer()(markdown)
	if err != nil {
		out = markdown
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func init() {
	rootCmd.AddCommand(callerCmd)
	callerCmd.AddCommand(callerShowCmd)
	callerCmd.AddCommand(callerLsCmd)
	callerShowCmd.Flags().Bool("json", false, "Print the raw record as JSON")
}
