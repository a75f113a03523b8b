package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/feedsync/internal/ats"
	"github.com/jonathan/feedsync/internal/db"
	"github.com/jonathan/feedsync/internal/feed"
	"github.com/jonathan/feedsync/internal/notify"
	"github.com/jonathan/feedsync/internal/orchestrator"
	"github.com/jonathan/feedsync/internal/registry"
	"github.com/jonathan/feedsync/internal/snapshot"
	"github.com/jonathan/feedsync/internal/transport"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle",
	Long:  "Run one full synchronization cycle: fetch the active records for every monitored collection, reconcile against the previous cycle, apply the changes to the feed document, and publish the result.",
	RunE:  runSync,
}

var (
	syncConfigPath   string
	syncCollections  []string
	syncFeedPath     string
	syncRegistryPath string
	syncSnapshotPath string
	syncPublishURL   string
	syncPublishPath  string
	syncReissue      []string
	syncVerbose      bool
)

func init() {
	syncCmd.Flags().StringVarP(&syncConfigPath, "config", "c", "", "Path to JSON config file (default feedsync.json if present)")
	syncCmd.Flags().StringSliceVar(&syncCollections, "collections", nil, "Collection ids to synchronize")
	syncCmd.Flags().StringVar(&syncFeedPath, "feed", "", "Path to the feed XML document")
	syncCmd.Flags().StringVar(&syncRegistryPath, "registry", "", "Path to the reference code registry")
	syncCmd.Flags().StringVar(&syncSnapshotPath, "snapshot", "", "Path to the previous record set snapshot")
	syncCmd.Flags().StringVar(&syncPublishURL, "publish-url", "", "HTTP destination for the finished feed")
	syncCmd.Flags().StringVar(&syncPublishPath, "publish-path", "", "Local file destination for the finished feed")
	syncCmd.Flags().StringSliceVar(&syncReissue, "reissue", nil, "External ids whose reference codes must be regenerated this cycle")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "Print the detailed cycle summary")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadMergedConfig(syncConfigPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("collections") {
		cfg.Collections = syncCollections
	}
	overrideString(cmd, "feed", &cfg.FeedPath, syncFeedPath)
	overrideString(cmd, "registry", &cfg.RegistryPath, syncRegistryPath)
	overrideString(cmd, "snapshot", &cfg.SnapshotPath, syncSnapshotPath)
	overrideString(cmd, "publish-url", &cfg.PublishURL, syncPublishURL)
	overrideString(cmd, "publish-path", &cfg.PublishPath, syncPublishPath)
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = syncVerbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := requireRemoteSettings(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	classifier := buildClassifier(ctx, cfg)
	defer func() { _ = classifier.Close() }()

	client := ats.NewClient(ats.Config{
		BaseURL:      cfg.BaseURL,
		Username:     cfg.Username,
		Password:     cfg.Password,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		PageSize:     cfg.PageSize,
		ExcludedIDs:  cfg.ExcludedIDs,
	})

	notifiers := notify.MultiNotifier{notify.NewLogNotifier()}
	if cfg.Verbose {
		notifiers = append(notifiers, notify.NewPrinter(os.Stdout))
	}

	var publisher transport.Publisher
	switch {
	case cfg.PublishURL != "":
		publisher = transport.NewHTTPPublisher(cfg.PublishURL)
	case cfg.PublishPath != "":
		publisher = transport.NewFilePublisher(cfg.PublishPath)
	}

	var history *db.History
	if cfg.DatabaseURL != "" {
		history, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: cycle history unavailable: %v", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	reissue := make(map[string]bool, len(syncReissue))
	for _, id := range syncReissue {
		reissue[id] = true
	}

	orch := orchestrator.New(orchestrator.Options{
		Source:       client,
		Collections:  cfg.Collections,
		Registry:     reg,
		Feed:         feed.NewStore(cfg.FeedPath),
		Snapshots:    snapshot.NewStore(cfg.SnapshotPath),
		Classifier:   classifier,
		Notifier:     notifiers,
		Publisher:    publisher,
		History:      history,
		ReissueCodes: reissue,
	})

	start := time.Now()
	report, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync cycle failed: %w", err)
	}

	fmt.Printf("Sync completed in %s: %d added, %d removed, %d modified\n",
		time.Since(start).Round(time.Millisecond),
		report.Result.Summary.AddedCount,
		report.Result.Summary.RemovedCount,
		report.Result.Summary.ModifiedCount)
	return nil
}
