package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/casefile"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of casefile",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "casefile version %s\n", strings.TrimSpace(casefile.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
