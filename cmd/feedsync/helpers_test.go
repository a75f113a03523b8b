package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/feedsync/internal/config"
)

func TestLoadMergedConfig(t *testing.T) {
	t.Setenv("ATS_PASSWORD", "env-pass")
	t.Setenv("ATS_CLIENT_SECRET", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"base_url": "https://ats.example.com",
		"username": "api-user",
		"collections": ["77"]
	}`), 0644))

	cfg, err := loadMergedConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ats.example.com", cfg.BaseURL)
	assert.Equal(t, "env-pass", cfg.Password, "secret filled from environment")
	assert.Equal(t, "feed.xml", cfg.FeedPath, "default applied")
	assert.Equal(t, 20, cfg.PageSize, "default applied")
}

func TestLoadMergedConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"page_size": -3}`), 0644))

	_, err := loadMergedConfig(path)
	assert.Error(t, err)
}

func TestRequireRemoteSettings(t *testing.T) {
	complete := config.Config{
		BaseURL:      "https://ats.example.com",
		Username:     "u",
		Password:     "p",
		ClientID:     "id",
		ClientSecret: "secret",
		Collections:  []string{"77"},
	}
	assert.NoError(t, requireRemoteSettings(complete))

	missingSecret := complete
	missingSecret.ClientSecret = ""
	assert.Error(t, requireRemoteSettings(missingSecret))

	noCollections := complete
	noCollections.Collections = nil
	assert.Error(t, requireRemoteSettings(noCollections))
}
