package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kylielacour/plantbot/internal/config"
)

var logbookCmd = &cobra.Command{
	Use:   "logbook",
	Short: "Write completed watering tasks back to the plant database",
	Long: `Scan the tracker's completed-items log for watering tasks that have not
been reconciled yet, write each task's completion date to its plant
record as the last-watered date, and mark the task reconciled. Per-task
failures are logged, counted, and retried on the next run.`,
	RunE: runLogbook,
}

func runLogbook(cmd *cobra.Command, args []string) error {
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

	_, err = runner.RunReverse(ctx)
	return err
}
