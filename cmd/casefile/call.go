package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/casefile"
	"github.com/aretw0/casefile/internal/presentation/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <ani>",
	Short: "Drive one call interactively from the terminal",
	Long: `Starts a call for the given caller number and reads tool invocations from
stdin, one per line: a tool name followed by key=value arguments.

  confirm_identity confirmed=true
  submit_spelled_email email="fox at example dot com"

Type "state" to print the call context and "hangup" to end the call. The
post-call payload is printed when the call ends.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		callID, _ := cmd.Flags().GetString("call-id")
		if callID == "" {
			callID = uuid.NewString()
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		runner := casefile.NewRunner()
		runner.Input = os.Stdin
		runner.Output = os.Stdout
		runner.Headless = headless
		if !headless {
			tui.PrintBanner(os.Stdout)
			runner.Renderer = tui.NewRenderer()
		}

		payload, err := runner.Run(cmd.Context(), app, callID, args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().Bool("headless", false, "Run without banner, prompts or markdown rendering")
	callCmd.Flags().String("call-id", "", "Call ID (default: a random UUID)")
}
