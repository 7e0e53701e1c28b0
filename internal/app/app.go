// v0
// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/config"
	httpserver "nrgchamp/condenser/internal/http"
	"nrgchamp/condenser/internal/ingest"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/publish"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/store"
)

// Application wires configuration, logging, evaluation, streaming ingest,
// publishing and the HTTP API of the condenser service.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	logFile   *os.File
	server    *http.Server
	health    *httpserver.HealthState
	service   *Service
	runs      *store.RunStore
	publisher *publish.KafkaPublisher
	influx    *publish.InfluxSink
	batcher   *ingest.Batcher
	kafka     *ingest.KafkaSource
	mqtt      *ingest.MQTTSource
}

// New prepares a fully wired service instance. Optional components are
// only built when enabled in cfg.
func New(cfg config.Config) (*Application, error) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	logPath := filepath.Clean(cfg.LogFilePath)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	a := &Application{
		cfg:     cfg,
		logger:  NewLogger(slog.LevelInfo, os.Stdout, lf),
		logFile: lf,
		health:  httpserver.NewHealthState(),
	}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build() error {
	cfg := a.cfg
	plantCfg, err := plant.Load(cfg.PlantPropertiesPath)
	if err != nil {
		return fmt.Errorf("plant config: %w", err)
	}
	runner, err := analysis.NewRunner(steam.IF97{}, plantCfg, cfg.Workers, a.logger.With(slog.String("component", "runner")))
	if err != nil {
		return fmt.Errorf("runner init: %w", err)
	}
	a.logger.Info("plant_config_loaded",
		slog.String("path", cfg.PlantPropertiesPath),
		slog.Float64("area_m2", plantCfg.Exchanger.Area),
		slog.Int("tubes", plantCfg.Exchanger.Tubes),
		slog.String("recirculation_mode", plantCfg.Catalog.RecirculationMode),
	)

	a.runs, err = store.NewRunStore(cfg.StorePath, a.logger)
	if err != nil {
		return fmt.Errorf("run store init: %w", err)
	}

	var sinks []publish.Sink
	if cfg.PublishEnabled {
		a.publisher, err = publish.NewKafkaPublisher(publish.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.ResultsTopic,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("results publisher init: %w", err)
		}
		sinks = append(sinks, a.publisher)
	}
	if cfg.InfluxEnabled {
		a.influx, err = publish.NewInfluxSink(publish.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("influx sink init: %w", err)
		}
		sinks = append(sinks, a.influx)
	}

	a.service, err = NewService(runner, a.runs, publish.NewFanout(a.logger, sinks...), a.logger)
	if err != nil {
		return err
	}

	if cfg.IngestEnabled || cfg.MQTTEnabled {
		a.batcher = ingest.NewBatcher(cfg.BatchSize, cfg.BatchFlush, a.service.handleBatch, a.logger)
	}
	if cfg.IngestEnabled {
		a.kafka, err = ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.SamplesGroupID,
			Topic:   cfg.SamplesTopic,
		}, a.batcher, a.logger)
		if err != nil {
			return fmt.Errorf("kafka source init: %w", err)
		}
	}
	if cfg.MQTTEnabled {
		a.mqtt, err = ingest.NewMQTTSource(ingest.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClient,
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		}, a.batcher, a.logger)
		if err != nil {
			return fmt.Errorf("mqtt source init: %w", err)
		}
	}

	var accessLog io.Writer
	if cfg.AccessLog {
		accessLog = os.Stdout
	}
	router := httpserver.NewRouter(a.logger, a.health, a.service)
	a.server = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           httpserver.NewHandler(a.logger, accessLog, router),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPWriteTimeout,
	}
	return nil
}

// Logger exposes the configured logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Service exposes the evaluation service.
func (a *Application) Service() *Service {
	return a.service
}

// Run blocks until ctx is cancelled or a component fails. On the way out
// the HTTP server is shut down, ingest stops, the batcher evaluates what it
// still holds and the publisher drains.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.publisher != nil {
		// The publisher outlives ctx so the final batches still go out.
		if err := a.publisher.Start(context.Background()); err != nil {
			return fmt.Errorf("start results publisher: %w", err)
		}
	}

	var ingestWG sync.WaitGroup
	batcherDone := make(chan struct{})
	if a.batcher != nil {
		go func() {
			a.batcher.Run(ctx)
			close(batcherDone)
		}()
	} else {
		close(batcherDone)
	}
	if a.kafka != nil {
		ingestWG.Add(1)
		go func() {
			defer ingestWG.Done()
			a.kafka.Run(ctx)
		}()
	}
	var mqttCh chan error
	if a.mqtt != nil {
		mqttCh = make(chan error, 1)
		go func() {
			mqttCh <- a.mqtt.Run(ctx)
		}()
	}

	httpCh := make(chan error, 1)
	go func() {
		a.health.SetReady(true)
		a.logger.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		httpCh <- a.server.ListenAndServe()
	}()

	var httpErr, mqttErr error
	for {
		select {
		case err := <-httpCh:
			httpCh = nil
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http_server_error", slog.Any("err", err))
				httpErr = err
			} else {
				a.logger.Info("server_closed")
			}
			cancel()
		case err := <-mqttCh:
			mqttCh = nil
			if err != nil {
				a.logger.Error("mqtt_source_error", slog.Any("err", err))
				mqttErr = err
			}
			cancel()
		case <-ctx.Done():
			a.logger.Info("shutdown_signal")
			a.health.SetReady(false)
			if err := a.shutdown(httpCh, mqttCh, &ingestWG, batcherDone); err != nil && httpErr == nil {
				httpErr = err
			}
			if mqttErr != nil {
				return mqttErr
			}
			if httpErr != nil {
				return httpErr
			}
			a.logger.Info("shutdown_complete")
			return nil
		}
	}
}

func (a *Application) shutdown(httpCh, mqttCh chan error, ingestWG *sync.WaitGroup, batcherDone chan struct{}) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var result error
	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server_shutdown_failed", slog.Any("err", err))
		result = fmt.Errorf("shutdown: %w", err)
	}
	if httpCh != nil {
		if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server_shutdown_error", slog.Any("err", err))
			if result == nil {
				result = err
			}
		}
	}
	if mqttCh != nil {
		if err := <-mqttCh; err != nil {
			a.logger.Error("mqtt_source_shutdown_error", slog.Any("err", err))
		}
	}
	ingestWG.Wait()
	<-batcherDone
	if a.publisher != nil {
		if err := a.publisher.Stop(shutdownCtx); err != nil {
			a.logger.Error("results_publisher_stop_err", slog.Any("err", err))
		}
	}
	return result
}

// Close releases resources owned by the application. It is safe to call
// after a failed New and more than once.
func (a *Application) Close() error {
	var errs []error
	if a.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		if err := a.publisher.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		a.publisher = nil
	}
	if a.influx != nil {
		a.influx.Close()
		a.influx = nil
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			errs = append(errs, err)
		}
		a.runs = nil
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
		a.logFile = nil
	}
	return errors.Join(errs...)
}
