// v0
// internal/solver/solver.go

// Package solver closes the condenser energy balance with a two-zone
// epsilon-NTU model. Cooling water first crosses the subcooling zone, where
// condensate is cooled below saturation, and then the condensing zone, where
// exhaust steam condenses at constant temperature. The boundary between the
// zones floats: the condensing-area fraction is iterated until the
// condensing duty matches the latent load of the incoming steam.
package solver

import (
	"errors"
	"fmt"
	"math"

	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/steam"
)

// ErrConvergence marks an energy balance that did not close.
var ErrConvergence = errors.New("energy balance did not converge")

// ConvergenceError reports where the iteration stopped.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	Reason     string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s after %d iterations (residual %.6g W)", e.Reason, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// Phase is the state of the iteration.
type Phase string

const (
	Initialized Phase = "initialized"
	Iterating   Phase = "iterating"
	Converged   Phase = "converged"
	Failed      Phase = "failed"
)

// Params are the exchanger constants and iteration bounds.
type Params struct {
	Area                 float64
	U                    plant.Coefficients
	MaxIterations        int
	TemperatureTolerance float64
	BalanceTolerance     float64
	Relaxation           float64
}

// ParamsFrom extracts solver parameters from the plant configuration.
func ParamsFrom(cfg plant.Config) Params {
	return Params{
		Area:                 cfg.Exchanger.Area,
		U:                    cfg.OverallCoefficients(),
		MaxIterations:        cfg.Solver.MaxIterations,
		TemperatureTolerance: cfg.Solver.TemperatureTolerance,
		BalanceTolerance:     cfg.Solver.BalanceTolerance,
		Relaxation:           cfg.Solver.Relaxation,
	}
}

// Input describes both streams entering the condenser.
type Input struct {
	// HotPressure is the condensing (exhaust) pressure in Pa.
	HotPressure float64
	// HotInletEnthalpy is the turbine exhaust enthalpy in J/kg.
	HotInletEnthalpy float64
	// HotMassFlow is the steam mass flow in kg/s.
	HotMassFlow float64
	// ColdInletTemperature in K.
	ColdInletTemperature float64
	// ColdPressure is the cooling-water pressure in Pa.
	ColdPressure float64
	// ColdMassFlow is the cooling-water mass flow in kg/s.
	ColdMassFlow float64
}

// Zone summarises one heat-transfer region.
type Zone struct {
	Area          float64 `json:"area_m2"`
	UA            float64 `json:"ua_w_k"`
	NTU           float64 `json:"ntu"`
	Effectiveness float64 `json:"effectiveness"`
	Duty          float64 `json:"duty_w"`
}

// Result is the state of the solver when it stopped.
type Result struct {
	Phase                 Phase   `json:"phase"`
	Iterations            int     `json:"iterations"`
	SaturationTemperature float64 `json:"saturation_temperature_k"`
	ColdOutletTemperature float64 `json:"cold_outlet_temperature_k"`
	HotOutletTemperature  float64 `json:"hot_outlet_temperature_k"`
	HeatDuty              float64 `json:"heat_duty_w"`
	HotLoss               float64 `json:"hot_loss_w"`
	ColdGain              float64 `json:"cold_gain_w"`
	Residual              float64 `json:"residual_w"`
	CondensingFraction    float64 `json:"condensing_fraction"`
	Condensing            Zone    `json:"condensing"`
	Subcooling            Zone    `json:"subcooling"`
}

// Solver evaluates the energy balance with a property oracle. It holds no
// per-call state and may be shared between goroutines when the oracle can.
type Solver struct {
	oracle steam.Oracle
	params Params
}

// New returns a Solver.
func New(o steam.Oracle, p Params) *Solver {
	return &Solver{oracle: o, params: p}
}

// Params returns the configured parameters.
func (s *Solver) Params() Params { return s.params }

// Solve runs the iteration to convergence or failure. The returned Result
// always reflects the last iterate, also on error.
func (s *Solver) Solve(in Input) (Result, error) {
	m := &machine{s: s, in: in, phase: Initialized}
	for {
		switch m.phase {
		case Initialized:
			m.init()
		case Iterating:
			m.step()
		case Converged:
			return m.result(), nil
		case Failed:
			return m.result(), m.err
		}
	}
}

// machine carries one Solve call through its phases.
type machine struct {
	s     *Solver
	in    Input
	phase Phase
	err   error

	tSat, hf  float64
	hColdIn   float64
	latent    float64
	f         float64
	tco, tho  float64
	iter      int
	hotLoss   float64
	coldGain  float64
	residual  float64
	cond, sub Zone
}

func (m *machine) fail(err error) {
	m.err = err
	m.phase = Failed
}

func (m *machine) diverge(reason string) {
	m.fail(&ConvergenceError{Iterations: m.iter, Residual: m.residual, Reason: reason})
}

func (m *machine) props(out steam.Quantity, in1 steam.Quantity, v1 float64, in2 steam.Quantity, v2 float64) float64 {
	if m.err != nil {
		return math.NaN()
	}
	v, err := m.s.oracle.Props(out, in1, v1, in2, v2, steam.Water)
	if err != nil {
		m.fail(err)
	}
	return v
}

func (m *machine) init() {
	in := m.in
	if in.HotMassFlow < 0 || in.ColdMassFlow < 0 || math.IsNaN(in.HotMassFlow) || math.IsNaN(in.ColdMassFlow) {
		m.diverge("invalid stream mass flow")
		return
	}
	m.tSat = m.props(steam.Temperature, steam.Pressure, in.HotPressure, steam.Quality, 0)
	m.hf = m.props(steam.Enthalpy, steam.Pressure, in.HotPressure, steam.Quality, 0)
	m.hColdIn = m.props(steam.Enthalpy, steam.Pressure, in.ColdPressure, steam.Temperature, in.ColdInletTemperature)
	if m.err != nil {
		return
	}

	m.f = 1
	m.tco = m.tSat
	m.tho = m.tSat
	if in.HotMassFlow == 0 {
		m.tco = in.ColdInletTemperature
		m.f = 0
		m.phase = Converged
		return
	}
	if in.ColdMassFlow == 0 {
		m.diverge("no cooling-water flow")
		return
	}
	if in.ColdInletTemperature >= m.tSat {
		m.diverge("cooling water at or above saturation temperature")
		return
	}
	if in.HotInletEnthalpy < m.hf {
		m.diverge("exhaust enthalpy below saturated liquid")
		return
	}
	m.latent = in.HotMassFlow * (in.HotInletEnthalpy - m.hf)
	m.phase = Iterating
}

// hotEnthalpy is the condensate enthalpy at t, pinned to the saturated
// liquid value at and above saturation.
func (m *machine) hotEnthalpy(t float64) float64 {
	if t >= m.tSat {
		return m.hf
	}
	return m.props(steam.Enthalpy, steam.Pressure, m.in.HotPressure, steam.Temperature, t)
}

func (m *machine) coldCp() float64 {
	in := m.in
	span := m.tco - in.ColdInletTemperature
	if math.Abs(span) < 1e-3 {
		return m.props(steam.HeatCap, steam.Pressure, in.ColdPressure, steam.Temperature, in.ColdInletTemperature)
	}
	h := m.props(steam.Enthalpy, steam.Pressure, in.ColdPressure, steam.Temperature, m.tco)
	return (h - m.hColdIn) / span
}

func (m *machine) hotCp() float64 {
	span := m.tSat - m.tho
	if span < 1e-3 {
		return m.props(steam.HeatCap, steam.Pressure, m.in.HotPressure, steam.Quality, 0)
	}
	return (m.hf - m.hotEnthalpy(m.tho)) / span
}

func (m *machine) step() {
	if m.iter >= m.s.params.MaxIterations {
		m.diverge("iteration limit reached")
		return
	}
	m.iter++
	p := m.s.params
	in := m.in

	cc := in.ColdMassFlow * m.coldCp()
	ch := in.HotMassFlow * m.hotCp()
	if m.err != nil {
		return
	}

	// Subcooling zone, counter-flow single-phase exchange.
	m.sub = Zone{Area: (1 - m.f) * p.Area}
	m.sub.UA = p.U.Subcooling * m.sub.Area
	cmin, cmax := math.Min(cc, ch), math.Max(cc, ch)
	if cmin > 0 {
		m.sub.NTU = m.sub.UA / cmin
		m.sub.Effectiveness = CounterFlow(m.sub.NTU, cmin/cmax)
	}
	m.sub.Duty = m.sub.Effectiveness * cmin * (m.tSat - in.ColdInletTemperature)
	tcm := in.ColdInletTemperature + m.sub.Duty/cc
	tho := m.tSat - m.sub.Duty/ch

	// Condensing zone, hot side isothermal.
	dT := m.tSat - tcm
	m.cond = Zone{Area: m.f * p.Area}
	m.cond.UA = p.U.Condensing * m.cond.Area
	m.cond.NTU = m.cond.UA / cc
	m.cond.Effectiveness = Condensing(m.cond.NTU)
	m.cond.Duty = m.cond.Effectiveness * cc * dT

	target := 1.0
	if ua := p.U.Condensing * p.Area; ua > 0 && dT > 0 && m.latent < cc*dT {
		target = -cc * math.Log(1-m.latent/(cc*dT)) / ua
	}
	target = math.Max(0, math.Min(1, target))
	m.f += p.Relaxation * (target - m.f)

	prev := m.tco
	m.tco = tcm + m.cond.Duty/cc
	m.tho = tho

	m.hotLoss = in.HotMassFlow * (in.HotInletEnthalpy - m.hotEnthalpy(m.tho))
	hco := m.props(steam.Enthalpy, steam.Pressure, in.ColdPressure, steam.Temperature, m.tco)
	if m.err != nil {
		return
	}
	m.coldGain = in.ColdMassFlow * (hco - m.hColdIn)
	m.residual = math.Abs(m.hotLoss - m.coldGain)

	for _, v := range []float64{m.tco, m.tho, m.f, m.hotLoss, m.coldGain} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			m.diverge("diverged")
			return
		}
	}
	if math.Abs(m.tco-prev) <= p.TemperatureTolerance && m.residual <= p.BalanceTolerance*math.Abs(m.hotLoss) {
		m.phase = Converged
	}
}

func (m *machine) result() Result {
	return Result{
		Phase:                 m.phase,
		Iterations:            m.iter,
		SaturationTemperature: m.tSat,
		ColdOutletTemperature: m.tco,
		HotOutletTemperature:  m.tho,
		HeatDuty:              m.cond.Duty + m.sub.Duty,
		HotLoss:               m.hotLoss,
		ColdGain:              m.coldGain,
		Residual:              m.residual,
		CondensingFraction:    m.f,
		Condensing:            m.cond,
		Subcooling:            m.sub,
	}
}

// CounterFlow is the effectiveness of a counter-flow exchanger.
func CounterFlow(ntu, cr float64) float64 {
	if ntu <= 0 {
		return 0
	}
	if math.Abs(1-cr) < 1e-12 {
		return ntu / (1 + ntu)
	}
	e := math.Exp(-ntu * (1 - cr))
	return (1 - e) / (1 - cr*e)
}

// Condensing is the effectiveness when one stream changes phase (Cr = 0).
func Condensing(ntu float64) float64 {
	if ntu <= 0 {
		return 0
	}
	return 1 - math.Exp(-ntu)
}
