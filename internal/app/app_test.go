// v0
// internal/app/app_test.go
package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/config"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/publish"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func plantRow() []float64 {
	row := make([]float64, 24)
	row[1], row[2], row[3] = 101.3, 150, 7
	row[5], row[6] = 4000, 38
	row[10], row[12] = 25, 28
	row[17] = 400
	row[19], row[20] = 60, 60
	row[21], row[22] = 50, 50
	row[23] = 20
	return row
}

type recordingSink struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, rep analysis.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rep.RunID)
	return s.err
}

func newTestService(t *testing.T, sink publish.Sink) (*Service, *store.RunStore) {
	t.Helper()
	runner, err := analysis.NewRunner(steam.IF97{}, plant.Default(), 2, discardLogger())
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	runs, err := store.NewRunStore(filepath.Join(t.TempDir(), "runs.jsonl"), discardLogger())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = runs.Close() })
	svc, err := NewService(runner, runs, sink, discardLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc, runs
}

func TestServiceEvaluateStoresAndPublishes(t *testing.T) {
	sink := &recordingSink{}
	svc, runs := newTestService(t, sink)
	tbl := samples.NewTable([][]float64{plantRow(), plantRow()}, nil)

	rep, err := svc.Evaluate(context.Background(), tbl, "api")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rep.Counts[analysis.StatusSuccess] != 2 {
		t.Fatalf("expected two successful rows, got %+v", rep.Counts)
	}
	stored, err := runs.Get(rep.RunID)
	if err != nil {
		t.Fatalf("stored run: %v", err)
	}
	if stored.Rows != 2 || stored.Source != "api" {
		t.Fatalf("unexpected stored run %+v", stored.Summary)
	}
	if len(sink.runs) != 1 || sink.runs[0] != rep.RunID {
		t.Fatalf("run not published: %v", sink.runs)
	}
	if got := svc.Runs(0); len(got) != 1 {
		t.Fatalf("expected one listed run, got %d", len(got))
	}
	if svc.Plant().Exchanger.Tubes != plant.Default().Exchanger.Tubes {
		t.Fatalf("unexpected plant config")
	}
}

func TestServicePublishFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	svc, runs := newTestService(t, sink)
	rep, err := svc.Evaluate(context.Background(), samples.NewTable([][]float64{plantRow()}, nil), "api")
	if err != nil {
		t.Fatalf("publish errors must not fail the run: %v", err)
	}
	if _, err := runs.Get(rep.RunID); err != nil {
		t.Fatalf("run must still be stored: %v", err)
	}
}

func TestServicePublishesThroughFanout(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{err: errors.New("bucket missing")}
	svc, _ := newTestService(t, publish.NewFanout(discardLogger(), first, nil, second))

	rep, err := svc.Evaluate(context.Background(), samples.NewTable([][]float64{plantRow()}, nil), "mqtt")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for name, sink := range map[string]*recordingSink{"first": first, "second": second} {
		if len(sink.runs) != 1 || sink.runs[0] != rep.RunID {
			t.Fatalf("%s sink did not receive the run: %v", name, sink.runs)
		}
	}
}

func TestServiceStoresCancelledRun(t *testing.T) {
	svc, runs := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := svc.Evaluate(ctx, samples.NewTable([][]float64{plantRow(), plantRow(), plantRow()}, nil), "api")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.Counts[analysis.StatusSkipped] != 3 {
		t.Fatalf("expected every row skipped, got %+v", rep.Counts)
	}
	if _, err := runs.Get(rep.RunID); err != nil {
		t.Fatalf("cancelled run must be stored: %v", err)
	}
}

func TestHandleBatchEvaluatesStreamingBatches(t *testing.T) {
	svc, runs := newTestService(t, nil)
	svc.handleBatch(context.Background(), samples.NewTable([][]float64{plantRow()}, nil), "kafka")
	list := runs.List(0)
	if len(list) != 1 || list[0].Source != "kafka" {
		t.Fatalf("batch not stored: %+v", list)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(nil, nil, nil, discardLogger()); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}

func TestNewLoggerTeesToAllOutputs(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewLogger(slog.LevelInfo, &a, nil, &b).With(slog.String("component", "test"))
	logger.Debug("hidden")
	logger.WithGroup("g").Info("run_completed", slog.Int("rows", 3))
	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		out := buf.String()
		if !strings.Contains(out, "run_completed") || !strings.Contains(out, "component=test") || !strings.Contains(out, "g.rows=3") {
			t.Fatalf("%s output missing record: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Fatalf("%s output must respect the level", name)
		}
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.LogFilePath = filepath.Join(dir, "logs", "condenser.log")
	cfg.StorePath = filepath.Join(dir, "data", "runs.jsonl")
	cfg.PlantPropertiesPath = filepath.Join(dir, "plant.properties")
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.IngestEnabled = false
	cfg.PublishEnabled = false
	return cfg
}

func TestApplicationRunsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	application, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()
	if application.Logger() == nil || application.Service() == nil {
		t.Fatalf("application not wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("application did not stop")
	}
	if _, err := os.Stat(cfg.LogFilePath); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestNewRejectsInvalidPlantProperties(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.PlantPropertiesPath, []byte("not a property\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected plant config error")
	}
}

func TestNewRejectsEmptyListenAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.ListenAddress = " "
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for empty listen address")
	}
}
