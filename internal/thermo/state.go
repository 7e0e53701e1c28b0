// v0
// internal/thermo/state.go

// Package thermo holds the per-section thermodynamic state of one sample row.
package thermo

import (
	"encoding/json"
	"math"
)

// Value is a scalar that is explicitly unset until a computation assigns it.
// The zero Value is unset, so a computed 0 is never confused with "missing".
type Value struct {
	v   float64
	set bool
}

// Of returns a set Value.
func Of(v float64) Value { return Value{v: v, set: true} }

// Get returns the value and whether it has been assigned.
func (v Value) Get() (float64, bool) { return v.v, v.set }

// IsSet reports whether the value has been assigned.
func (v Value) IsSet() bool { return v.set }

// Or returns the value, or fallback when unset.
func (v Value) Or(fallback float64) float64 {
	if !v.set {
		return fallback
	}
	return v.v
}

// MarshalJSON encodes an unset or non-finite value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set || math.IsNaN(v.v) || math.IsInf(v.v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON treats null as unset.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Of(f)
	return nil
}

// State is the thermodynamic state at one process section. Units are SI:
// K, Pa, J/kg, J/(kg·K), kg/m³, kg/s and m³/s.
type State struct {
	Temperature Value `json:"temperature_k"`
	Pressure    Value `json:"pressure_pa"`
	Enthalpy    Value `json:"enthalpy_j_kg"`
	Entropy     Value `json:"entropy_j_kgk"`
	Density     Value `json:"density_kg_m3"`
	Quality     Value `json:"quality"`
	MassFlow    Value `json:"mass_flow_kg_s"`
	VolumeFlow  Value `json:"volume_flow_m3_s"`
}

// Section names a point of the process.
type Section string

const (
	TurbineInlet            Section = "turbine_inlet"
	TurbineOutletIsentropic Section = "turbine_outlet_isentropic"
	TurbineOutlet           Section = "turbine_outlet"
	CondenserColdInlet      Section = "condenser_cold_inlet"
	CondensateOutlet        Section = "condensate_outlet"
	CoolingWaterOutlet      Section = "cooling_water_outlet"
)

// Sections lists every section in propagation order.
var Sections = []Section{
	TurbineInlet,
	TurbineOutletIsentropic,
	TurbineOutlet,
	CondenserColdInlet,
	CondensateOutlet,
	CoolingWaterOutlet,
}

// Profile is the set of section states for one row.
type Profile struct {
	TurbineInlet            State `json:"turbine_inlet"`
	TurbineOutletIsentropic State `json:"turbine_outlet_isentropic"`
	TurbineOutlet           State `json:"turbine_outlet"`
	CondenserColdInlet      State `json:"condenser_cold_inlet"`
	CondensateOutlet        State `json:"condensate_outlet"`
	CoolingWaterOutlet      State `json:"cooling_water_outlet"`
}

// At returns the state of section s, or nil for an unknown section.
func (p *Profile) At(s Section) *State {
	switch s {
	case TurbineInlet:
		return &p.TurbineInlet
	case TurbineOutletIsentropic:
		return &p.TurbineOutletIsentropic
	case TurbineOutlet:
		return &p.TurbineOutlet
	case CondenserColdInlet:
		return &p.CondenserColdInlet
	case CondensateOutlet:
		return &p.CondensateOutlet
	case CoolingWaterOutlet:
		return &p.CoolingWaterOutlet
	default:
		return nil
	}
}

// CelsiusToKelvin converts a temperature reading.
func CelsiusToKelvin(c float64) float64 { return c + 273.15 }

// KelvinToCelsius converts a temperature back for display.
func KelvinToCelsius(k float64) float64 { return k - 273.15 }

// KiloPascalToPascal converts a pressure reading.
func KiloPascalToPascal(kpa float64) float64 { return kpa * 1000 }
