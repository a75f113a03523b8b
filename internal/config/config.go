// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
// Secrets (password, client secret, API keys) are normally supplied through
// the environment rather than the file.
type Config struct {
	// Remote source
	BaseURL      string   `json:"base_url,omitempty"`      // Remote ATS base URL
	Username     string   `json:"username,omitempty"`      // API username
	Password     string   `json:"password,omitempty"`      // API password (prefer ATS_PASSWORD env)
	ClientID     string   `json:"client_id,omitempty"`     // OAuth client id
	ClientSecret string   `json:"client_secret,omitempty"` // OAuth client secret (prefer ATS_CLIENT_SECRET env)
	Collections  []string `json:"collections,omitempty"`   // Monitored collection (tearsheet) ids
	ExcludedIDs  []string `json:"excluded_ids,omitempty"`  // External ids never published
	PageSize     int      `json:"page_size,omitempty"`     // Pagination window for remote queries

	// Local state
	FeedPath     string `json:"feed_path,omitempty"`     // Path to the feed XML document
	RegistryPath string `json:"registry_path,omitempty"` // Path to the reference code registry
	SnapshotPath string `json:"snapshot_path,omitempty"` // Path to the previous record set snapshot

	// Downstream
	PublishURL  string `json:"publish_url,omitempty"`  // HTTP destination for the finished feed
	PublishPath string `json:"publish_path,omitempty"` // Local file destination for the finished feed

	// Behavior
	GeminiAPIKey string `json:"gemini_api_key,omitempty"` // Classifier API key (prefer GEMINI_API_KEY env)
	DatabaseURL  string `json:"database_url,omitempty"`   // Optional PostgreSQL cycle history
	Verbose      bool   `json:"verbose,omitempty"`        // Print detailed cycle summaries
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: required fields are enforced by the CLI after merging flags and
// environment values.
func (c *Config) Validate() error {
	if c.PublishURL != "" && c.PublishPath != "" {
		return fmt.Errorf("config error: 'publish_url' and 'publish_path' are mutually exclusive")
	}

	if c.PageSize < 0 {
		return fmt.Errorf("config error: 'page_size' must be non-negative")
	}

	for _, id := range c.Collections {
		if id == "" {
			return fmt.Errorf("config error: 'collections' must not contain empty ids")
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.BaseURL == "" {
		result.BaseURL = defaults.BaseURL
	}
	if result.Username == "" {
		result.Username = defaults.Username
	}
	if result.Password == "" {
		result.Password = defaults.Password
	}
	if result.ClientID == "" {
		result.ClientID = defaults.ClientID
	}
	if result.ClientSecret == "" {
		result.ClientSecret = defaults.ClientSecret
	}
	if result.FeedPath == "" {
		result.FeedPath = defaults.FeedPath
	}
	if result.RegistryPath == "" {
		result.RegistryPath = defaults.RegistryPath
	}
	if result.SnapshotPath == "" {
		result.SnapshotPath = defaults.SnapshotPath
	}
	if result.PublishURL == "" {
		result.PublishURL = defaults.PublishURL
	}
	if result.PublishPath == "" {
		result.PublishPath = defaults.PublishPath
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Slice fields: use default if unset
	if len(result.Collections) == 0 {
		result.Collections = defaults.Collections
	}
	if len(result.ExcludedIDs) == 0 {
		result.ExcludedIDs = defaults.ExcludedIDs
	}

	// Int fields: use default if zero
	if result.PageSize == 0 {
		result.PageSize = defaults.PageSize
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ApplyEnv fills secret fields from the environment when unset in the file.
func (c *Config) ApplyEnv() {
	if c.Password == "" {
		c.Password = os.Getenv("ATS_PASSWORD")
	}
	if c.ClientSecret == "" {
		c.ClientSecret = os.Getenv("ATS_CLIENT_SECRET")
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}
