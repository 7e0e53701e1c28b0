// v0
// internal/solver/solver_test.go
package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/steam"
)

const (
	stubCp   = 4186.0
	stubTsat = 313.15
	hotP     = 7000.0
	coldP    = 1e5
)

// linearOracle models water as an incompressible liquid with constant cp
// and a fixed saturation temperature.
type linearOracle struct {
	nanEnthalpy bool
}

func (o linearOracle) Props(out steam.Quantity, in1 steam.Quantity, v1 float64, in2 steam.Quantity, v2 float64, fluid string) (float64, error) {
	if in2 == steam.Quality {
		switch out {
		case steam.Temperature:
			return stubTsat, nil
		case steam.Enthalpy:
			return stubCp * (stubTsat - 273.15), nil
		case steam.HeatCap:
			return stubCp, nil
		}
	}
	if in2 == steam.Temperature {
		switch out {
		case steam.Enthalpy:
			if o.nanEnthalpy {
				return math.NaN(), nil
			}
			return stubCp * (v2 - 273.15), nil
		case steam.HeatCap:
			return stubCp, nil
		}
	}
	return math.NaN(), &steam.LookupError{Out: out, In1: in1, V1: v1, In2: in2, V2: v2, Fluid: fluid, Reason: "stub"}
}

func tightParams(uc, us, area float64) Params {
	return Params{
		Area:                 area,
		U:                    plant.Coefficients{Condensing: uc, Subcooling: us},
		MaxIterations:        500,
		TemperatureTolerance: 1e-10,
		BalanceTolerance:     1e-10,
		Relaxation:           1,
	}
}

func hfStub() float64 { return stubCp * (stubTsat - 273.15) }

func TestCounterFlowClosedForm(t *testing.T) {
	const (
		mh, mc = 1.0, 2.0
		tci    = 293.15
		us, a  = 500.0, 10.0
	)
	s := New(linearOracle{}, tightParams(2000, us, a))
	res, err := s.Solve(Input{
		HotPressure:          hotP,
		HotInletEnthalpy:     hfStub(),
		HotMassFlow:          mh,
		ColdInletTemperature: tci,
		ColdPressure:         coldP,
		ColdMassFlow:         mc,
	})
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Phase)

	ch, cc := mh*stubCp, mc*stubCp
	cr := ch / cc
	ntu := us * a / ch
	eps := (1 - math.Exp(-ntu*(1-cr))) / (1 - cr*math.Exp(-ntu*(1-cr)))
	q := eps * ch * (stubTsat - tci)

	assert.InEpsilon(t, q, res.HeatDuty, 1e-6)
	assert.InEpsilon(t, tci+q/cc, res.ColdOutletTemperature, 1e-6)
	assert.InEpsilon(t, stubTsat-q/ch, res.HotOutletTemperature, 1e-6)
	assert.InDelta(t, 0, res.CondensingFraction, 1e-12)
	assert.InEpsilon(t, eps, res.Subcooling.Effectiveness, 1e-9)
	assert.LessOrEqual(t, res.Iterations, 10)
}

func TestBalancedStreamsUseLimitForm(t *testing.T) {
	s := New(linearOracle{}, tightParams(2000, 400, 10))
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: hfStub(), HotMassFlow: 1,
		ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 1,
	})
	require.NoError(t, err)
	ntu := 400.0 * 10 / stubCp
	assert.InEpsilon(t, ntu/(1+ntu), res.Subcooling.Effectiveness, 1e-9)
	assert.InEpsilon(t, ntu/(1+ntu)*stubCp*20, res.HeatDuty, 1e-6)
}

func TestCondensingOnlyMatchesClosedForm(t *testing.T) {
	const (
		mc, uc, a = 100.0, 2000.0, 100.0
		latent    = 2e6
		tci       = 293.15
	)
	p := tightParams(uc, 0, a)
	p.Relaxation = 0.8
	s := New(linearOracle{}, p)
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: hfStub() + latent, HotMassFlow: 1,
		ColdInletTemperature: tci, ColdPressure: coldP, ColdMassFlow: mc,
	})
	require.NoError(t, err)

	cc := mc * stubCp
	dT := stubTsat - tci
	f := -cc * math.Log(1-latent/(cc*dT)) / (uc * a)
	assert.InEpsilon(t, f, res.CondensingFraction, 1e-6)
	assert.InEpsilon(t, latent, res.HeatDuty, 1e-6)
	assert.InEpsilon(t, 1-math.Exp(-res.Condensing.NTU), res.Condensing.Effectiveness, 1e-12)
	assert.InDelta(t, stubTsat, res.HotOutletTemperature, 1e-9)
	assert.Equal(t, 0.0, res.Subcooling.Duty)
}

func TestZeroUAFailsWithinBound(t *testing.T) {
	p := tightParams(0, 0, 800)
	p.MaxIterations = 25
	s := New(linearOracle{}, p)
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: hfStub() + 2e6, HotMassFlow: 1,
		ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 100,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConvergence))
	var ce *ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 25, ce.Iterations)
	assert.Equal(t, Failed, res.Phase)
	assert.Equal(t, 25, res.Iterations)
	assert.Greater(t, res.Residual, 0.0)
}

func TestNonFiniteIterateStopsEarly(t *testing.T) {
	s := New(linearOracle{nanEnthalpy: true}, tightParams(2000, 500, 10))
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: hfStub() + 1e5, HotMassFlow: 1,
		ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConvergence))
	assert.Equal(t, 1, res.Iterations)
}

func TestEdgeStreams(t *testing.T) {
	s := New(linearOracle{}, tightParams(2000, 500, 10))
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: hfStub() + 1e6, HotMassFlow: 0,
		ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.HeatDuty)
	assert.Equal(t, 293.15, res.ColdOutletTemperature)

	for name, in := range map[string]Input{
		"no cooling water":   {HotPressure: hotP, HotInletEnthalpy: hfStub() + 1e6, HotMassFlow: 1, ColdInletTemperature: 293.15, ColdPressure: coldP},
		"warm cooling water": {HotPressure: hotP, HotInletEnthalpy: hfStub() + 1e6, HotMassFlow: 1, ColdInletTemperature: 320, ColdPressure: coldP, ColdMassFlow: 10},
		"subcooled exhaust":  {HotPressure: hotP, HotInletEnthalpy: hfStub() - 1, HotMassFlow: 1, ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 10},
		"negative flow":      {HotPressure: hotP, HotInletEnthalpy: hfStub(), HotMassFlow: -1, ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 10},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Solve(in)
			assert.True(t, errors.Is(err, ErrConvergence), "%v", err)
		})
	}
}

func TestLookupFailurePropagates(t *testing.T) {
	s := New(steam.IF97{}, ParamsFrom(plant.Default()))
	res, err := s.Solve(Input{
		HotPressure: -1, HotInletEnthalpy: 2e6, HotMassFlow: 1,
		ColdInletTemperature: 293.15, ColdPressure: coldP, ColdMassFlow: 10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, steam.ErrPropertyLookup))
	assert.Equal(t, Failed, res.Phase)
}

func TestSolveWithIF97(t *testing.T) {
	o := steam.IF97{}
	h, err := o.Props(steam.Enthalpy, steam.Pressure, hotP, steam.Quality, 0.9, steam.Water)
	require.NoError(t, err)

	s := New(o, ParamsFrom(plant.Default()))
	res, err := s.Solve(Input{
		HotPressure: hotP, HotInletEnthalpy: h, HotMassFlow: 5,
		ColdInletTemperature: 298.15, ColdPressure: 101300, ColdMassFlow: 830,
	})
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Phase)
	assert.Greater(t, res.ColdOutletTemperature, 298.15)
	assert.Less(t, res.ColdOutletTemperature, res.SaturationTemperature)
	assert.LessOrEqual(t, res.HotOutletTemperature, res.SaturationTemperature)
	assert.Greater(t, res.CondensingFraction, 0.0)
	assert.LessOrEqual(t, res.CondensingFraction, 1.0)
	assert.InEpsilon(t, res.HotLoss, res.ColdGain, 2e-3)
}

func TestEffectivenessRelations(t *testing.T) {
	assert.Equal(t, 0.0, CounterFlow(0, 0.5))
	assert.InDelta(t, 1.0, CounterFlow(50, 0.3), 1e-9)
	assert.InDelta(t, 0.5, CounterFlow(1, 1), 1e-12)
	assert.InDelta(t, Condensing(2), CounterFlow(2, 0), 1e-12)
	assert.Equal(t, 0.0, Condensing(-1))
}
