package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Manage persisted call state and post-call payloads",
	Long:  `List, inspect, remove and prune call state, and read post-call payloads from the sink directory.`,
}

var callsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List calls with persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list calls: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No calls found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Calls:")
		for _, id := range ids {
			sc, err := app.Sessions.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s (unreadable: %v)\n", id, err)
				continue
			}
			state := "live"
			if sc.Terminated() {
				state = "ended"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "- %s  %s  %s  %s\n", id, sc.ANI, sc.Step, state)
		}
		return nil
	},
}

var callsInspectCmd = &cobra.Command{
	Use:   "inspect <call-id>",
	Short: "Print the state of a call, or its post-call payload with --payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var v any
		if payload, _ := cmd.Flags().GetBool("payload"); payload {
			v, err = app.Sink.Read(args[0])
		} else {
			v, err = app.Sessions.Load(cmd.Context(), args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to load call '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal call: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var callsRmCmd = &cobra.Command{
	Use:   "rm <call-id>...",
	Short: "Remove the state of one or more calls",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		hasError := false
		for _, id := range args {
			if err := app.Sessions.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing '%s': %v\n", id, err)
				hasError = true
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed call '%s'\n", id)
		}
		if hasError {
			return fmt.Errorf("some calls could not be removed")
		}
		return nil
	},
}

var callsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove call state older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		removed, err := app.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d call(s).\n", len(removed))
		return nil
	},
}

var callsPayloadsCmd = &cobra.Command{
	Use:   "payloads",
	Short: "List post-call payloads in the sink directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Sink.List()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d payload(s) in %s\n", len(ids), app.Sink.Dir())
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), "- "+id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callsCmd)
	callsCmd.AddCommand(callsLsCmd, callsInspectCmd, callsRmCmd, callsPruneCmd, callsPayloadsCmd)
	callsInspectCmd.Flags().Bool("payload", false, "Read the post-call payload instead of the live state")
}
