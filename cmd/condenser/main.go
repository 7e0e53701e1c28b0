// v0
// cmd/condenser/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nrgchamp/condenser/internal/app"
	"nrgchamp/condenser/internal/config"
)

func main() {
	bootstrap := app.NewLogger(slog.LevelInfo, os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		bootstrap.Error("app_init_failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger := application.Logger()
	logger.Info("service_boot",
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("log_path", cfg.LogFilePath),
		slog.String("properties_path", cfg.PropertiesPath),
		slog.String("plant_properties_path", cfg.PlantPropertiesPath),
		slog.String("store_path", cfg.StorePath),
		slog.String("kafka_brokers", strings.Join(cfg.KafkaBrokers, ",")),
		slog.Bool("ingest", cfg.IngestEnabled),
		slog.String("samples_topic", cfg.SamplesTopic),
		slog.Bool("publish", cfg.PublishEnabled),
		slog.String("results_topic", cfg.ResultsTopic),
		slog.Bool("mqtt", cfg.MQTTEnabled),
		slog.Bool("influx", cfg.InfluxEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := application.Run(ctx)
	stop()

	if cerr := application.Close(); cerr != nil {
		bootstrap.Error("app_close_failed", slog.Any("err", cerr))
	}
	if runErr != nil {
		bootstrap.Error("service_terminated", slog.Any("err", runErr))
		os.Exit(1)
	}
	bootstrap.Info("service_stopped")
}
