// v0
// internal/analysis/report.go

// Package analysis evaluates sample tables row by row and assembles run
// reports. Each row is an independent steady-state snapshot: a failed row
// carries its status and cause while the rest of the run continues.
package analysis

import (
	"errors"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/solver"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/thermo"
)

// Status classifies the outcome of one row.
type Status string

const (
	StatusSuccess             Status = "Success"
	StatusPropertyLookupError Status = "PropertyLookupError"
	StatusConvergenceFailure  Status = "ConvergenceFailure"
	StatusInputSchemaError    Status = "InputSchemaError"
	// StatusSkipped marks rows never started because the run was cancelled.
	StatusSkipped Status = "Skipped"
)

// Failed reports whether the status is one of the row error kinds.
func (s Status) Failed() bool {
	switch s {
	case StatusPropertyLookupError, StatusConvergenceFailure, StatusInputSchemaError:
		return true
	default:
		return false
	}
}

// Classify maps a row error onto its status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, samples.ErrInputSchema):
		return StatusInputSchemaError
	case errors.Is(err, solver.ErrConvergence):
		return StatusConvergenceFailure
	case errors.Is(err, steam.ErrPropertyLookup):
		return StatusPropertyLookupError
	default:
		// Oracles outside this module may not wrap ErrPropertyLookup.
		return StatusPropertyLookupError
	}
}

// RowResult is the outcome of evaluating one sample row.
type RowResult struct {
	Index     int            `json:"index"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Section   thermo.Section `json:"section,omitempty"`

	SteamFlow   thermo.Value `json:"steam_flow_m3_s"`
	CoolingFlow thermo.Value `json:"cooling_flow_m3_s"`

	Iterations int          `json:"iterations"`
	Residual   thermo.Value `json:"residual_w"`

	Profile   thermo.Profile `json:"sections"`
	Condenser *solver.Result `json:"condenser,omitempty"`

	// ColdOutletDeviation is measured minus predicted cooling-water outlet
	// temperature in K.
	ColdOutletDeviation thermo.Value `json:"cold_outlet_deviation_k"`
	TubeVelocity        thermo.Value `json:"tube_velocity_m_s"`
}

// HeatDuty returns the predicted duty of a successful row.
func (r RowResult) HeatDuty() (float64, bool) {
	if r.Status != StatusSuccess || r.Condenser == nil {
		return 0, false
	}
	return r.Condenser.HeatDuty, true
}

// Failure is a failed row with its cause.
type Failure struct {
	Index   int            `json:"index"`
	Status  Status         `json:"status"`
	Section thermo.Section `json:"section,omitempty"`
	Error   string         `json:"error"`
}

// Stats summarises heat duty over successful rows, in W.
type Stats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean_w"`
	StdDev float64 `json:"stddev_w"`
	Min    float64 `json:"min_w"`
	Max    float64 `json:"max_w"`
}

// Summary is the list view of a run.
type Summary struct {
	RunID      string         `json:"run_id"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Rows       int            `json:"rows"`
	Counts     map[Status]int `json:"counts"`
	HeatDuty   Stats          `json:"heat_duty"`
}

// Report is the full outcome of a run.
type Report struct {
	Summary
	Failures []Failure   `json:"failures"`
	Results  []RowResult `json:"results"`
}

func newReport(id, source string, started, finished time.Time, results []RowResult) Report {
	rep := Report{
		Summary: Summary{
			RunID:      id,
			Source:     source,
			StartedAt:  started,
			FinishedAt: finished,
			Rows:       len(results),
			Counts:     make(map[Status]int),
		},
		Failures: []Failure{},
		Results:  results,
	}
	duties := make([]float64, 0, len(results))
	for _, r := range results {
		rep.Counts[r.Status]++
		if r.Status.Failed() {
			rep.Failures = append(rep.Failures, Failure{Index: r.Index, Status: r.Status, Section: r.Section, Error: r.Error})
		}
		if q, ok := r.HeatDuty(); ok {
			duties = append(duties, q)
		}
	}
	sort.Slice(rep.Failures, func(i, j int) bool { return rep.Failures[i].Index < rep.Failures[j].Index })
	rep.HeatDuty = dutyStats(duties)
	return rep
}

func dutyStats(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}
	s := Stats{N: len(x), Min: floats.Min(x), Max: floats.Max(x)}
	if len(x) == 1 {
		s.Mean = x[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	return s
}
