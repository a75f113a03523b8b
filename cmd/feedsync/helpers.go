package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/feedsync/internal/classify"
	"github.com/jonathan/feedsync/internal/config"
)

// defaultConfig holds the fallback values applied when neither the config
// file nor the flags set a field.
var defaultConfig = config.Config{
	FeedPath:     "feed.xml",
	RegistryPath: "reference_codes.json",
	SnapshotPath: "last_sync.json",
	PageSize:     20,
}

// loadMergedConfig builds the effective configuration: config file values
// first, secrets filled from the environment, defaults applied last. Flag
// overrides are handled by the individual commands before calling this.
func loadMergedConfig(configPath string) (config.Config, error) {
	var cfg config.Config

	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	} else if _, err := os.Stat("feedsync.json"); err == nil {
		loaded, err := config.LoadConfig("feedsync.json")
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(defaultConfig)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildClassifier selects the model-backed classifier when an API key is
// configured and falls back to the static keyword classifier otherwise.
func buildClassifier(ctx context.Context, cfg config.Config) classify.Classifier {
	if cfg.GeminiAPIKey != "" {
		c, err := classify.NewGeminiClassifier(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("warning: model classifier unavailable, using keyword fallback: %v", err)
			return classify.NewKeywordClassifier()
		}
		return c
	}
	return classify.NewKeywordClassifier()
}

// overrideString applies a flag value over the config value when the flag
// was explicitly set.
func overrideString(cmd *cobra.Command, name string, target *string, value string) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func requireRemoteSettings(cfg config.Config) error {
	if cfg.BaseURL == "" || cfg.Username == "" || cfg.Password == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("remote credentials are incomplete: base_url, username, password, client_id, and client_secret are all required")
	}
	if len(cfg.Collections) == 0 {
		return fmt.Errorf("at least one collection id is required")
	}
	return nil
}
