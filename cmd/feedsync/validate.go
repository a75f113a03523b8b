package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/feedsync/internal/feed"
	"github.com/jonathan/feedsync/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the feed document and registry without mutating anything",
	Long:  "Parse the feed document and the reference code registry and run the structural checks: well-formed container, required fields present, no duplicate external ids.",
	RunE:  runValidate,
}

var validateConfigPath string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Path to JSON config file (default feedsync.json if present)")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadMergedConfig(validateConfigPath)
	if err != nil {
		return err
	}

	store := feed.NewStore(cfg.FeedPath)
	if err := store.Validate(); err != nil {
		return fmt.Errorf("feed document %s: %w", cfg.FeedPath, err)
	}
	entries, err := store.Snapshot()
	if err != nil {
		return err
	}
	fmt.Printf("Feed document OK: %d entries\n", len(entries))

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	fmt.Printf("Registry OK: %d reference codes\n", reg.Len())

	return nil
}
