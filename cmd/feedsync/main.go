// Package main provides the entry point for the feedsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Job feed synchronization tool",
	Long:  "feedsync keeps a published XML job feed in step with the remote applicant tracking system: it fetches the active records for the monitored collections, reconciles them against the previous cycle, and applies the resulting changes to the feed document atomically.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
