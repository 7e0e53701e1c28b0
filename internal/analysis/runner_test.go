// v0
// internal/analysis/runner_test.go
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/condenser/internal/pipeline"
	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/solver"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/thermo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// plantRow is a part-load operating point of the unit in logged units.
func plantRow() []float64 {
	row := make([]float64, 24)
	row[1] = 101.3 // cold inlet kPa
	row[2] = 150   // tower outlet kPa
	row[3] = 7     // exhaust kPa
	row[5] = 4000  // turbine inlet kPa
	row[6] = 38    // condensate °C
	row[10] = 25   // cold inlet °C
	row[12] = 28   // cooling water outlet °C
	row[17] = 400  // turbine inlet °C
	row[19], row[20] = 60, 60
	row[21], row[22] = 50, 50
	row[23] = 20 // feed pump Hz
	return row
}

func newTestRunner(t *testing.T, cfg plant.Config) *Runner {
	t.Helper()
	r, err := NewRunner(steam.IF97{}, cfg, 4, discardLogger())
	require.NoError(t, err)
	return r
}

func TestRunClassifiesEveryRow(t *testing.T) {
	good := plantRow()

	missing := plantRow()
	missing[17] = math.NaN()

	region3 := plantRow()
	region3[5] = 50000 // 50 MPa
	region3[17] = 426.85

	warm := plantRow()
	warm[10] = 45 // cooling water above Tsat(7 kPa)

	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	tbl := samples.NewTable([][]float64{good, missing, region3, warm}, []time.Time{ts, {}, {}, {}})

	rep, err := newTestRunner(t, plant.Default()).Run(context.Background(), tbl, "test")
	require.NoError(t, err)
	require.Len(t, rep.Results, 4)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, "test", rep.Source)

	assert.Equal(t, StatusSuccess, rep.Results[0].Status, rep.Results[0].Error)
	assert.Equal(t, StatusInputSchemaError, rep.Results[1].Status)
	assert.Equal(t, StatusPropertyLookupError, rep.Results[2].Status)
	assert.Equal(t, thermo.TurbineInlet, rep.Results[2].Section)
	assert.Equal(t, StatusConvergenceFailure, rep.Results[3].Status)

	assert.Equal(t, 1, rep.Counts[StatusSuccess])
	require.Len(t, rep.Failures, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rep.Failures[0].Index, rep.Failures[1].Index, rep.Failures[2].Index})
	for _, f := range rep.Failures {
		assert.NotEmpty(t, f.Error)
	}

	ok := rep.Results[0]
	require.NotNil(t, ok.Condenser)
	require.NotNil(t, ok.Timestamp)
	assert.Equal(t, ts, *ok.Timestamp)
	assert.Equal(t, solver.Converged, ok.Condenser.Phase)
	assert.Greater(t, ok.Condenser.HeatDuty, 0.0)
	assert.True(t, ok.ColdOutletDeviation.IsSet())
	assert.True(t, ok.TubeVelocity.IsSet())
	assert.Equal(t, 1, rep.HeatDuty.N)
	assert.Equal(t, ok.Condenser.HeatDuty, rep.HeatDuty.Mean)

	steamFlow, _ := ok.SteamFlow.Get()
	assert.InDelta(t, 0.012777778*20/60, steamFlow, 1e-12)
	coolingFlow, _ := ok.CoolingFlow.Get()
	assert.InDelta(t, 2*0.41725, coolingFlow, 1e-12)

	raw, err := json.Marshal(rep)
	require.NoError(t, err, "reports with failed rows must encode")
	assert.Contains(t, string(raw), `"status":"InputSchemaError"`)
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	rows := make([][]float64, 12)
	for i := range rows {
		row := plantRow()
		row[23] = float64(10 + i)
		rows[i] = row
	}
	tbl := samples.NewTable(rows, nil)

	one, err := NewRunner(steam.IF97{}, plant.Default(), 1, discardLogger())
	require.NoError(t, err)
	many, err := NewRunner(steam.IF97{}, plant.Default(), 8, discardLogger())
	require.NoError(t, err)

	a, err := one.Run(context.Background(), tbl, "a")
	require.NoError(t, err)
	b, err := many.Run(context.Background(), tbl, "b")
	require.NoError(t, err)
	require.Equal(t, len(a.Results), len(b.Results))
	for i := range a.Results {
		assert.Equal(t, i, b.Results[i].Index)
		assert.Equal(t, a.Results[i].Status, b.Results[i].Status)
		qa, _ := a.Results[i].HeatDuty()
		qb, _ := b.Results[i].HeatDuty()
		assert.Equal(t, qa, qb)
	}
	assert.Equal(t, 12, a.HeatDuty.N)
	assert.Greater(t, a.HeatDuty.Max, a.HeatDuty.Min)
	assert.Greater(t, a.HeatDuty.StdDev, 0.0)
}

func TestRunCancelledSkipsRows(t *testing.T) {
	tbl := samples.NewTable([][]float64{plantRow(), plantRow(), plantRow()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newTestRunner(t, plant.Default()).Run(ctx, tbl, "test")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, rep.Counts[StatusSkipped])
	assert.Empty(t, rep.Failures)
}

func TestMeasuredModeRequiresSecondPump(t *testing.T) {
	cfg := plant.Default()
	cfg.Catalog.RecirculationMode = plant.ModeMeasured
	row := plantRow()
	row[20] = math.NaN()
	rep, err := newTestRunner(t, cfg).Run(context.Background(), samples.NewTable([][]float64{row}, nil), "test")
	require.NoError(t, err)
	assert.Equal(t, StatusInputSchemaError, rep.Results[0].Status)
	assert.Contains(t, rep.Results[0].Error, string(samples.RecirculationPump2))
}

func TestNewRunnerRejectsBadConfig(t *testing.T) {
	cfg := plant.Default()
	cfg.Exchanger.Area = 0
	_, err := NewRunner(steam.IF97{}, cfg, 1, nil)
	require.Error(t, err)

	cfg = plant.Default()
	cfg.Columns = map[string]int{"nonexistent": 1}
	_, err = NewRunner(steam.IF97{}, cfg, 1, nil)
	require.Error(t, err)

	_, err = NewRunner(nil, plant.Default(), 1, nil)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusSuccess, Classify(nil))
	assert.Equal(t, StatusInputSchemaError, Classify(fmt.Errorf("wrap: %w", &samples.SchemaError{})))
	assert.Equal(t, StatusConvergenceFailure, Classify(&solver.ConvergenceError{Reason: "x"}))
	assert.Equal(t, StatusPropertyLookupError, Classify(&pipeline.SectionError{Section: thermo.TurbineOutlet, Err: &steam.LookupError{}}))
	assert.Equal(t, StatusPropertyLookupError, Classify(errors.New("foreign oracle failure")))
	assert.True(t, StatusConvergenceFailure.Failed())
	assert.False(t, StatusSkipped.Failed())
}

func TestDutyStats(t *testing.T) {
	assert.Equal(t, Stats{}, dutyStats(nil))
	one := dutyStats([]float64{5})
	assert.Equal(t, Stats{N: 1, Mean: 5, Min: 5, Max: 5}, one)
	s := dutyStats([]float64{1, 2, 3})
	assert.InDelta(t, 2, s.Mean, 1e-12)
	assert.InDelta(t, 1, s.StdDev, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
}
