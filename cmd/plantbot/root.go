package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kylielacour/plantbot/internal/backup"
	"github.com/kylielacour/plantbot/internal/checkpoint"
	"github.com/kylielacour/plantbot/internal/config"
	"github.com/kylielacour/plantbot/internal/history"
	"github.com/kylielacour/plantbot/internal/ledger"
	syncer "github.com/kylielacour/plantbot/internal/sync"
	"github.com/kylielacour/plantbot/internal/tracker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "plantbot",
	Short:        "Plantbot - keeps the plant database and the task manager in sync",
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.AddCommand(waterCmd)
	rootCmd.AddCommand(logbookCmd)
	rootCmd.AddCommand(conditionsCmd)
	rootCmd.AddCommand(historyCmd)
}

// initLogger configures the process-wide logger from config.
func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildRunner assembles the reconciliation runner and its collaborators
// from config. The returned cleanup closes what needs closing. Failures of
// the optional observability collaborators (run history, backup) are logged
// and degrade to nil/noop; failures of required ones are returned.
func buildRunner(cfg *config.Config) (*syncer.Runner, func(), error) {
	checkpoints, err := checkpoint.NewFileStore(cfg.Sync.CheckpointPath)
	if err != nil {
		return nil, nil, err
	}

	lg := ledger.New(cfg.Notion.BaseURL, cfg.Notion.Token, cfg.Notion.DatabaseID, ledger.Properties{
		Name:          cfg.Notion.Properties.Name,
		NextWatering:  cfg.Notion.Properties.NextWatering,
		RecommendedML: cfg.Notion.Properties.RecommendedML,
		LastWatered:   cfg.Notion.Properties.LastWatered,
	})

	things := tracker.NewThings(cfg.Tracker.Project, time.Duration(cfg.Tracker.Timeout))

	cleanup := func() {}
	var recorder syncer.Recorder
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			slog.Warn("run history unavailable", "path", cfg.History.Path, "error", err)
		} else {
			recorder = store
			cleanup = func() { store.Close() }
		}
	}

	uploader, err := backup.NewUploader(backup.Config{
		Endpoint:  cfg.Backup.Endpoint,
		Region:    cfg.Backup.Region,
		Bucket:    cfg.Backup.Bucket,
		ObjectKey: cfg.Backup.ObjectKey,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
		UseSSL:    cfg.Backup.UseSSL,
	})
	if err != nil {
		slog.Warn("checkpoint backup unavailable", "error", err)
		uploader = &backup.NoopUploader{}
	}

	runner := syncer.NewRunner(syncer.Config{
		Ledger:         lg,
		Tracker:        things,
		Checkpoints:    checkpoints,
		Scheme:         syncer.Scheme(cfg.Sync.CheckpointScheme),
		LogbookLimit:   cfg.Sync.LogbookLimit,
		CheckpointPath: checkpoints.Path(),
		History:        recorder,
		Backup:         uploader,
	})
	return runner, cleanup, nil
}
