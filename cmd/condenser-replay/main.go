// v0
// cmd/condenser-replay/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nrgchamp/condenser/internal/app"
	"nrgchamp/condenser/internal/config"
	"nrgchamp/condenser/internal/ingest"
	"nrgchamp/condenser/internal/replay"
	"nrgchamp/condenser/internal/samples"
)

type options struct {
	props     string
	in        string
	transport string
	interval  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("condenser-replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.props, "props", "condenser.properties", "service properties file")
	fs.StringVar(&o.in, "in", "", "CSV sample table to replay")
	fs.StringVar(&o.transport, "transport", "kafka", "kafka or mqtt")
	fs.DurationVar(&o.interval, "interval", time.Second, "pause between rows")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.in == "" {
		return options{}, errors.New("-in is required")
	}
	if o.transport != "kafka" && o.transport != "mqtt" {
		return options{}, fmt.Errorf("unknown transport %q", o.transport)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := app.NewLogger(slog.LevelInfo, stderr).With(slog.String("component", "replay"))

	cfg, err := config.LoadFrom(o.props)
	if err != nil {
		logger.Error("config_load_failed", slog.Any("err", err))
		return 1
	}
	f, err := os.Open(o.in)
	if err != nil {
		logger.Error("input_open_failed", slog.Any("err", err))
		return 1
	}
	tbl, err := samples.LoadCSV(f)
	_ = f.Close()
	if err != nil {
		logger.Error("input_read_failed", slog.Any("err", err))
		return 1
	}

	pub, err := newPublisher(o.transport, cfg, logger)
	if err != nil {
		logger.Error("publisher_init_failed", slog.String("transport", o.transport), slog.Any("err", err))
		return 1
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("publisher_close_failed", slog.Any("err", err))
		}
	}()

	if _, err := replay.Replay(ctx, tbl, pub, o.interval, logger); err != nil {
		logger.Error("replay_failed", slog.Any("err", err))
		return 1
	}
	return 0
}

func newPublisher(transport string, cfg config.Config, log *slog.Logger) (replay.Publisher, error) {
	if transport == "mqtt" {
		return replay.NewMQTTPublisher(ingest.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClient + "-replay",
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		})
	}
	return replay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.SamplesTopic, log)
}
