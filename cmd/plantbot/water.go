package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kylielacour/plantbot/internal/config"
)

var waterCmd = &cobra.Command{
	Use:   "water",
	Short: "Create open tasks for plants due for watering",
	Long: `Query the plant database for records due on or before today and create
one open task per plant in the tracker project, skipping plants that
already have an open task. Per-plant failures are logged and counted but
do not fail the run.`,
	RunE: runWater,
}

func runWater(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg)

	runner, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = runner.RunForward(ctx)
	return err
}
