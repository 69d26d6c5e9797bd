package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/casefile/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Read the consent ledger",
}

var consentHistoryCmd = &cobra.Command{
	Use:   "history <ani>",
	Short: "Show every consent decision a caller made, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		rows, err := app.Ledger.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return render(cmd, tui.ConsentMarkdown(args[0], rows))
	},
}

func init() {
	rootCmd.AddCommand(consentCmd)
	consentCmd.AddCommand(consentHistoryCmd)
	consentHistoryCmd.Flags().Bool("json", false, "Print the rows as JSON")
}
