// v0
// internal/app/service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nrgchamp/condenser/internal/analysis"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/publish"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/store"
)

// Service evaluates tables, persists every run and fans the results out to
// the configured sinks. The HTTP API and the streaming batcher share it.
type Service struct {
	runner *analysis.Runner
	runs   *store.RunStore
	sink   publish.Sink
	log    *slog.Logger
}

// NewService wires a runner to its store. sink may be nil.
func NewService(runner *analysis.Runner, runs *store.RunStore, sink publish.Sink, log *slog.Logger) (*Service, error) {
	if runner == nil {
		return nil, errors.New("runner must not be nil")
	}
	if runs == nil {
		return nil, errors.New("run store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runner: runner,
		runs:   runs,
		sink:   sink,
		log:    log.With(slog.String("component", "service")),
	}, nil
}

// Evaluate runs t, stores the report and publishes it. A cancelled run is
// still stored with its skipped rows and the context error is returned
// alongside the report. Publish failures are logged, not returned.
func (s *Service) Evaluate(ctx context.Context, t *samples.Table, source string) (analysis.Report, error) {
	rep, runErr := s.runner.Run(ctx, t, source)
	if err := s.runs.Append(rep); err != nil {
		return rep, fmt.Errorf("store run %s: %w", rep.RunID, err)
	}
	if s.sink != nil {
		if err := s.sink.Publish(context.WithoutCancel(ctx), rep); err != nil {
			s.log.Warn("run_publish_err", slog.String("run_id", rep.RunID), slog.Any("err", err))
		}
	}
	return rep, runErr
}

// Run returns a stored report.
func (s *Service) Run(id string) (analysis.Report, error) { return s.runs.Get(id) }

// Runs lists stored summaries, newest first.
func (s *Service) Runs(limit int) []analysis.Summary { return s.runs.List(limit) }

// Plant returns the active geometry and catalog configuration.
func (s *Service) Plant() plant.Config { return s.runner.Plant() }

// handleBatch is the streaming batch handler.
func (s *Service) handleBatch(ctx context.Context, t *samples.Table, source string) {
	if _, err := s.Evaluate(ctx, t, source); err != nil {
		s.log.Error("batch_eval_err", slog.String("source", source), slog.Int("rows", t.Rows()), slog.Any("err", err))
	}
}
