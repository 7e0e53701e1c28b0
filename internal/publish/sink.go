// v0
// internal/publish/sink.go

// Package publish delivers finished run reports to downstream systems.
package publish

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nrgchamp/condenser/internal/analysis"
)

// Sink receives every finished run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, rep analysis.Report) error
}

// Fanout forwards a report to every sink. Sink failures are logged and
// counted; they never fail the run that produced the report.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

// NewFanout skips nil sinks.
func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	f := &Fanout{log: log.With(slog.String("component", "publish"))}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Name identifies the fan-out in service logs.
func (f *Fanout) Name() string { return "fanout" }

// Len reports the number of attached sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish returns the joined sink errors for callers that want them.
func (f *Fanout) Publish(ctx context.Context, rep analysis.Report) error {
	var errs []error
	for _, s := range f.sinks {
		start := time.Now()
		err := s.Publish(ctx, rep)
		if err != nil {
			f.log.Error("publish_err", slog.String("sink", s.Name()), slog.String("run_id", rep.RunID), slog.Any("err", err))
			errs = append(errs, err)
			continue
		}
		f.log.Debug("publish_ok", slog.String("sink", s.Name()), slog.String("run_id", rep.RunID), slog.Duration("elapsed", time.Since(start)))
	}
	return errors.Join(errs...)
}

// rowMessage is the wire form of one row result.
type rowMessage struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
	analysis.RowResult
}
