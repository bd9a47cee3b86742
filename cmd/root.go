package cmd

import (
	"fmt"
	"os"

	"X402FM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "x402fm_server",
	Short: "X402FM is a pay-per-play music streaming service.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
