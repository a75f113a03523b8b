package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/feedsync/internal/feed"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate entries from the feed document",
	Long:  "Repair pass for a feed document that has accumulated duplicate external ids: keeps the most recently written entry for each id and drops the rest.",
	RunE:  runDedupe,
}

var dedupeConfigPath string

func init() {
	dedupeCmd.Flags().StringVarP(&dedupeConfigPath, "config", "c", "", "Path to JSON config file (default feedsync.json if present)")

	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, err := loadMergedConfig(dedupeConfigPath)
	if err != nil {
		return err
	}

	removed, err := feed.NewStore(cfg.FeedPath).Deduplicate()
	if err != nil {
		return fmt.Errorf("deduplication failed: %w", err)
	}

	if removed == 0 {
		fmt.Println("No duplicate entries found")
	} else {
		fmt.Printf("Removed %d duplicate entries\n", removed)
	}
	return nil
}
