package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/feedsync/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync cycles from the history store",
	Long:  "List recent sync cycles recorded in the PostgreSQL history store. Requires database_url in the config or DATABASE_URL in the environment.",
	RunE:  runHistory,
}

var (
	historyConfigPath string
	historyLimit      int
)

func init() {
	historyCmd.Flags().StringVarP(&historyConfigPath, "config", "c", "", "Path to JSON config file (default feedsync.json if present)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of cycles to list")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadMergedConfig(historyConfigPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("no history store configured: set database_url or DATABASE_URL")
	}

	ctx := cmd.Context()
	history, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to history store: %w", err)
	}
	defer history.Close()

	cycles, err := history.ListCycles(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Println("No sync cycles recorded")
		return nil
	}

	for _, c := range cycles {
		completed := "running"
		if c.CompletedAt != nil {
			completed = c.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %-9s  started %s  finished %s  collections %v\n",
			c.ID, c.Status, c.CreatedAt.Format("2006-01-02 15:04:05"), completed, c.Collections)
	}
	return nil
}
