// v0
// internal/pipeline/pipeline.go

// Package pipeline propagates the thermodynamic state of one sample row
// through the turbine and into both condenser streams.
package pipeline

import (
	"fmt"
	"math"

	"nrgchamp/condenser/internal/samples"
	"nrgchamp/condenser/internal/steam"
	"nrgchamp/condenser/internal/thermo"
)

// SectionError attributes a failure to the section being evaluated.
type SectionError struct {
	Section thermo.Section
	Err     error
}

func (e *SectionError) Error() string { return fmt.Sprintf("section %s: %v", e.Section, e.Err) }

func (e *SectionError) Unwrap() error { return e.Err }

// RealEnthalpy applies the isentropic efficiency to an expansion:
// h = h_in − (h_in − h_is)·η.
func RealEnthalpy(hIn, hIs, eta float64) float64 {
	return hIn - (hIn-hIs)*eta
}

// Input is everything one row contributes to the propagation.
type Input struct {
	Reading samples.Reading
	// SteamFlow is the condensate-line volumetric flow in m³/s.
	SteamFlow float64
	// CoolingFlow is the recirculation-line volumetric flow in m³/s.
	CoolingFlow float64
	// Efficiency is the turbine isentropic efficiency.
	Efficiency float64
}

// Propagate fills every section of the profile in order. The first oracle
// failure stops the row and is returned wrapped in a SectionError; sections
// computed so far are kept in the returned profile.
func Propagate(o steam.Oracle, in Input) (thermo.Profile, error) {
	var p thermo.Profile
	rd := in.Reading

	var (
		sec thermo.Section
		err error
	)
	props := func(out steam.Quantity, in1 steam.Quantity, v1 float64, in2 steam.Quantity, v2 float64) float64 {
		if err != nil {
			return math.NaN()
		}
		v, e := o.Props(out, in1, v1, in2, v2, steam.Water)
		if e != nil {
			err = &SectionError{Section: sec, Err: e}
		}
		return v
	}
	quality := func(st *thermo.State, x float64) {
		if x >= 0 && x <= 1 {
			st.Quality = thermo.Of(x)
		}
	}

	sec = thermo.TurbineInlet
	ti := &p.TurbineInlet
	ti.Temperature = thermo.Of(rd.TurbineInletTemperature)
	ti.Pressure = thermo.Of(rd.TurbineInletPressure)
	hIn := props(steam.Enthalpy, steam.Pressure, rd.TurbineInletPressure, steam.Temperature, rd.TurbineInletTemperature)
	sIn := props(steam.Entropy, steam.Pressure, rd.TurbineInletPressure, steam.Temperature, rd.TurbineInletTemperature)
	rhoIn := props(steam.Density, steam.Pressure, rd.TurbineInletPressure, steam.Temperature, rd.TurbineInletTemperature)
	if err != nil {
		return p, err
	}
	ti.Enthalpy, ti.Entropy, ti.Density = thermo.Of(hIn), thermo.Of(sIn), thermo.Of(rhoIn)

	sec = thermo.TurbineOutletIsentropic
	tis := &p.TurbineOutletIsentropic
	pOut := rd.ExhaustPressure
	tis.Pressure = thermo.Of(pOut)
	tis.Entropy = thermo.Of(sIn)
	hIs := props(steam.Enthalpy, steam.Pressure, pOut, steam.Entropy, sIn)
	tIs := props(steam.Temperature, steam.Pressure, pOut, steam.Entropy, sIn)
	xIs := props(steam.Quality, steam.Pressure, pOut, steam.Entropy, sIn)
	if err != nil {
		return p, err
	}
	tis.Enthalpy, tis.Temperature = thermo.Of(hIs), thermo.Of(tIs)
	quality(tis, xIs)

	sec = thermo.TurbineOutlet
	to := &p.TurbineOutlet
	hOut := RealEnthalpy(hIn, hIs, in.Efficiency)
	to.Pressure = thermo.Of(pOut)
	to.Enthalpy = thermo.Of(hOut)
	tOut := props(steam.Temperature, steam.Pressure, pOut, steam.Enthalpy, hOut)
	sOut := props(steam.Entropy, steam.Pressure, pOut, steam.Enthalpy, hOut)
	rhoOut := props(steam.Density, steam.Pressure, pOut, steam.Enthalpy, hOut)
	xOut := props(steam.Quality, steam.Pressure, pOut, steam.Enthalpy, hOut)
	if err != nil {
		return p, err
	}
	to.Temperature, to.Entropy, to.Density = thermo.Of(tOut), thermo.Of(sOut), thermo.Of(rhoOut)
	quality(to, xOut)

	sec = thermo.CondenserColdInlet
	ci := &p.CondenserColdInlet
	ci.Temperature = thermo.Of(rd.ColdInletTemperature)
	ci.Pressure = thermo.Of(rd.ColdInletPressure)
	rhoCold := props(steam.Density, steam.Pressure, rd.ColdInletPressure, steam.Temperature, rd.ColdInletTemperature)
	hCold := props(steam.Enthalpy, steam.Pressure, rd.ColdInletPressure, steam.Temperature, rd.ColdInletTemperature)
	if err != nil {
		return p, err
	}
	ci.Density, ci.Enthalpy = thermo.Of(rhoCold), thermo.Of(hCold)
	ci.VolumeFlow = thermo.Of(in.CoolingFlow)
	ci.MassFlow = thermo.Of(in.CoolingFlow * rhoCold)

	sec = thermo.CondensateOutlet
	co := &p.CondensateOutlet
	co.Pressure = thermo.Of(pOut)
	tSat := props(steam.Temperature, steam.Pressure, pOut, steam.Quality, 0)
	if err != nil {
		return p, err
	}
	var rhoCond, hCond float64
	tCond := rd.CondensateTemperature
	if tCond < tSat {
		rhoCond = props(steam.Density, steam.Pressure, pOut, steam.Temperature, tCond)
		hCond = props(steam.Enthalpy, steam.Pressure, pOut, steam.Temperature, tCond)
	} else {
		// A reading at or above saturation is treated as saturated liquid.
		tCond = tSat
		rhoCond = props(steam.Density, steam.Pressure, pOut, steam.Quality, 0)
		hCond = props(steam.Enthalpy, steam.Pressure, pOut, steam.Quality, 0)
	}
	if err != nil {
		return p, err
	}
	co.Temperature, co.Density, co.Enthalpy = thermo.Of(tCond), thermo.Of(rhoCond), thermo.Of(hCond)
	co.Quality = thermo.Of(0)
	co.VolumeFlow = thermo.Of(in.SteamFlow)
	hot := in.SteamFlow * rhoCond
	co.MassFlow = thermo.Of(hot)
	ti.MassFlow = thermo.Of(hot)
	tis.MassFlow = thermo.Of(hot)
	to.MassFlow = thermo.Of(hot)

	sec = thermo.CoolingWaterOutlet
	cw := &p.CoolingWaterOutlet
	tcw := rd.CoolingWaterOutletTemperature
	if math.IsNaN(tcw) {
		return p, nil
	}
	pcw := rd.TowerOutletPressure
	if math.IsNaN(pcw) {
		pcw = rd.ColdInletPressure
	}
	cw.Temperature = thermo.Of(tcw)
	cw.Pressure = thermo.Of(pcw)
	hcw := props(steam.Enthalpy, steam.Pressure, pcw, steam.Temperature, tcw)
	rhocw := props(steam.Density, steam.Pressure, pcw, steam.Temperature, tcw)
	if err != nil {
		return p, err
	}
	cw.Enthalpy, cw.Density = thermo.Of(hcw), thermo.Of(rhocw)
	cw.MassFlow = ci.MassFlow
	return p, nil
}
