// v0
// internal/analysis/runner.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"nrgchamp/condenser/internal/flow"
	"nrgchamp/condenser/internal/metrics"
	"nrgchamp/condenser/internal/pipeline"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/solver"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/thermo"
)

// Runner evaluates sample tables against one plant configuration. It is
// safe for concurrent use; every Run works on its own result slice.
type Runner struct {
	oracle  steam.Oracle
	cfg     plant.Config
	schema  samples.Schema
	solver  *solver.Solver
	workers int
	logger  *slog.Logger
}

// NewRunner validates cfg and prepares the schema and solver. workers <= 0
// selects runtime.NumCPU().
func NewRunner(o steam.Oracle, cfg plant.Config, workers int, logger *slog.Logger) (*Runner, error) {
	if o == nil {
		return nil, errors.New("property oracle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("plant config: %w", err)
	}
	schema, err := samples.NewSchema(cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("column map: %w", err)
	}
	if cfg.Catalog.RecirculationMode == plant.ModeMeasured {
		schema = schema.Require(samples.RecirculationPump2)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		oracle:  o,
		cfg:     cfg,
		schema:  schema,
		solver:  solver.New(o, solver.ParamsFrom(cfg)),
		workers: workers,
		logger:  logger,
	}, nil
}

// Plant returns the configuration the runner evaluates against.
func (r *Runner) Plant() plant.Config { return r.cfg }

// Schema returns the effective column schema.
func (r *Runner) Schema() samples.Schema { return r.schema }

// Run evaluates every row of t. Rows fan out over the worker pool and land
// in the report by index. When ctx is cancelled, rows not yet started are
// reported as Skipped and ctx.Err() is returned with the partial report.
func (r *Runner) Run(ctx context.Context, t *samples.Table, source string) (Report, error) {
	started := time.Now().UTC()
	id := uuid.NewString()
	n := t.Rows()

	lines := flow.Derive(r.cfg.Catalog, r.schema, t)
	results := make([]RowResult, n)
	for i := range results {
		results[i] = RowResult{Index: i, Status: StatusSkipped}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := r.workers
	if workers > n {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[i] = r.evaluate(t, lines, i)
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	finished := time.Now().UTC()
	rep := newReport(id, source, started, finished, results)

	for _, res := range results {
		if res.Status == StatusSkipped {
			continue
		}
		metrics.ObserveRow(string(res.Status), res.Iterations)
		if res.Status.Failed() {
			r.logger.Debug("row_failed",
				slog.String("run_id", id),
				slog.Int("row", res.Index),
				slog.String("status", string(res.Status)),
				slog.String("error", res.Error),
			)
		}
	}
	for i := len(results) - 1; i >= 0; i-- {
		if q, ok := results[i].HeatDuty(); ok {
			metrics.SetLastHeatDuty(q)
			break
		}
	}
	metrics.IncRun(source)
	metrics.ObserveRun(finished.Sub(started))

	r.logger.Info("run_completed",
		slog.String("run_id", id),
		slog.String("source", source),
		slog.Int("rows", n),
		slog.Int("succeeded", rep.Counts[StatusSuccess]),
		slog.Int("failed", len(rep.Failures)),
		slog.Int("skipped", rep.Counts[StatusSkipped]),
		slog.Duration("elapsed", finished.Sub(started)),
	)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// evaluate runs one row through schema, pipeline and solver.
func (r *Runner) evaluate(t *samples.Table, lines flow.Lines, i int) RowResult {
	res := RowResult{Index: i}
	if ts, ok := t.Timestamp(i); ok {
		res.Timestamp = &ts
	}
	fail := func(err error) RowResult {
		res.Status = Classify(err)
		res.Error = err.Error()
		var se *pipeline.SectionError
		if errors.As(err, &se) {
			res.Section = se.Section
		}
		return res
	}

	rd, err := r.schema.Read(t, i)
	if err != nil {
		return fail(err)
	}
	steamFlow, coolingFlow := lines.At(i)
	if !finite(steamFlow) || !finite(coolingFlow) {
		return fail(&samples.SchemaError{Row: i, Channel: samples.FeedPump, Column: r.schema.Column(samples.FeedPump), Reason: "flow could not be derived"})
	}
	res.SteamFlow = thermo.Of(steamFlow)
	res.CoolingFlow = thermo.Of(coolingFlow)
	res.TubeVelocity = thermo.Of(r.cfg.TubeVelocity(coolingFlow))

	profile, err := pipeline.Propagate(r.oracle, pipeline.Input{
		Reading:     rd,
		SteamFlow:   steamFlow,
		CoolingFlow: coolingFlow,
		Efficiency:  r.cfg.TurbineEfficiency,
	})
	res.Profile = profile
	if err != nil {
		return fail(err)
	}

	hIn, _ := profile.TurbineOutlet.Enthalpy.Get()
	hot, _ := profile.CondensateOutlet.MassFlow.Get()
	cold, _ := profile.CondenserColdInlet.MassFlow.Get()
	out, err := r.solver.Solve(solver.Input{
		HotPressure:          rd.ExhaustPressure,
		HotInletEnthalpy:     hIn,
		HotMassFlow:          hot,
		ColdInletTemperature: rd.ColdInletTemperature,
		ColdPressure:         rd.ColdInletPressure,
		ColdMassFlow:         cold,
	})
	res.Iterations = out.Iterations
	if finite(out.Residual) {
		res.Residual = thermo.Of(out.Residual)
	}
	if err != nil {
		return fail(err)
	}

	res.Status = StatusSuccess
	res.Condenser = &out
	if measured, ok := profile.CoolingWaterOutlet.Temperature.Get(); ok {
		res.ColdOutletDeviation = thermo.Of(measured - out.ColdOutletTemperature)
	}
	return res
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
