package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kylielacour/plantbot/internal/conditions"
	"github.com/kylielacour/plantbot/internal/config"
	"github.com/kylielacour/plantbot/internal/ledger"
)

var conditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "Copy house temperature and humidity onto the plant database",
	RunE:  runConditions,
}

func runConditions(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateConditions(); err != nil {
		return err
	}
	initLogger(cfg)

	lg := ledger.New(cfg.Notion.BaseURL, cfg.Notion.Token, cfg.Notion.DatabaseID, ledger.Properties{
		Name:          cfg.Notion.Properties.Name,
		NextWatering:  cfg.Notion.Properties.NextWatering,
		RecommendedML: cfg.Notion.Properties.RecommendedML,
		LastWatered:   cfg.Notion.Properties.LastWatered,
	})
	sensor := conditions.NewSensor(cfg.Conditions.URL, cfg.Conditions.Token)
	updater := conditions.NewUpdater(sensor, lg,
		cfg.Conditions.PageID,
		cfg.Conditions.TemperatureEntity,
		cfg.Conditions.HumidityEntity,
		conditions.Properties{
			Temperature: cfg.Conditions.TemperatureProp,
			Humidity:    cfg.Conditions.HumidityProp,
			UpdatedAt:   cfg.Conditions.UpdatedAtProp,
		})

	temp, humidity, err := updater.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("house conditions updated", "temperature_f", temp, "humidity_pct", humidity)
	return nil
}
