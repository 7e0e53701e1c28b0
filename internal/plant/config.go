// v0
// internal/plant/config.go

// Package plant holds the static geometry and catalog constants of the
// condenser unit. A Config is loaded once and passed by value; nothing in
// the evaluation path mutates it.
package plant

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Exchanger describes the shell-and-tube geometry. Lengths in m, area in m²,
// conductivity in W/(m·K).
type Exchanger struct {
	Area               float64 `json:"area_m2"`
	Tubes              int     `json:"tubes"`
	TubeThickness      float64 `json:"tube_thickness_m"`
	TubeInnerDiameter  float64 `json:"tube_inner_diameter_m"`
	TubeOuterDiameter  float64 `json:"tube_outer_diameter_m"`
	ShellOuterDiameter float64 `json:"shell_outer_diameter_m"`
	ShellInnerDiameter float64 `json:"shell_inner_diameter_m"`
	SteamInletDiameter float64 `json:"steam_inlet_diameter_m"`
	Length             float64 `json:"length_m"`
	PitchLongitudinal  float64 `json:"pitch_longitudinal_m"`
	PitchTransverse    float64 `json:"pitch_transverse_m"`
	TubeConductivity   float64 `json:"tube_conductivity_w_mk"`
}

// Design holds nameplate volumetric flows in m³/s.
type Design struct {
	CondensateFlow   float64 `json:"condensate_flow_m3_s"`
	CoolingWaterFlow float64 `json:"cooling_water_flow_m3_s"`
}

// Recirculation modes for redundant parallel pumps.
const (
	ModeMirror   = "mirror"
	ModeMeasured = "measured"
)

// Catalog holds pump catalog flows at the reference frequency.
type Catalog struct {
	FeedPumpFlow          float64 `json:"feed_pump_flow_m3_s"`
	RecirculationPumpFlow float64 `json:"recirculation_pump_flow_m3_s"`
	ReferenceHz           float64 `json:"reference_hz"`
	RecirculationUnits    int     `json:"recirculation_units"`
	RecirculationMode     string  `json:"recirculation_mode"`
}

// HeatTransfer holds film coefficients in W/(m²·K) and the fouling
// resistance in m²·K/W, all referenced to the tube outer surface except
// CoolingWater, which is the tube-side film.
type HeatTransfer struct {
	Condensing   float64 `json:"condensing_w_m2k"`
	Subcooling   float64 `json:"subcooling_w_m2k"`
	CoolingWater float64 `json:"cooling_water_w_m2k"`
	Fouling      float64 `json:"fouling_m2k_w"`
}

// Solver bounds the energy-balance iteration.
type Solver struct {
	MaxIterations        int     `json:"max_iterations"`
	TemperatureTolerance float64 `json:"temperature_tolerance_k"`
	BalanceTolerance     float64 `json:"balance_tolerance"`
	Relaxation           float64 `json:"relaxation"`
}

// Config is the full plant description.
type Config struct {
	Exchanger         Exchanger      `json:"exchanger"`
	Design            Design         `json:"design"`
	Catalog           Catalog        `json:"catalog"`
	TurbineEfficiency float64        `json:"turbine_efficiency"`
	HeatTransfer      HeatTransfer   `json:"heat_transfer"`
	Solver            Solver         `json:"solver"`
	Columns           map[string]int `json:"columns,omitempty"`
}

// Default returns the constants of the Quixeré cogeneration unit.
func Default() Config {
	return Config{
		Exchanger: Exchanger{
			Area:               800,
			Tubes:              2840,
			TubeThickness:      0.0007,
			TubeInnerDiameter:  0.02,
			TubeOuterDiameter:  0.0214,
			ShellOuterDiameter: 2.4,
			ShellInnerDiameter: 2.22,
			SteamInletDiameter: 1.016,
			Length:             4.562,
			PitchLongitudinal:  0.025,
			PitchTransverse:    0.030,
			TubeConductivity:   16.2,
		},
		Design: Design{
			CondensateFlow:   0.01,
			CoolingWaterFlow: 0.72,
		},
		Catalog: Catalog{
			FeedPumpFlow:          0.012777778,
			RecirculationPumpFlow: 0.41725,
			ReferenceHz:           60,
			RecirculationUnits:    2,
			RecirculationMode:     ModeMirror,
		},
		TurbineEfficiency: 0.7337,
		HeatTransfer: HeatTransfer{
			Condensing:   8000,
			Subcooling:   1500,
			CoolingWater: 5000,
		},
		Solver: Solver{
			MaxIterations:        200,
			TemperatureTolerance: 1e-4,
			BalanceTolerance:     1e-3,
			Relaxation:           0.8,
		},
	}
}

// Load layers the properties file at path over Default. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open plant properties: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return Config{}, fmt.Errorf("invalid plant properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := cfg.set(key, value); err != nil {
			return Config{}, fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("read plant properties: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	if name, ok := strings.CutPrefix(key, "column."); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid column index: %w", err)
		}
		if n < 0 {
			return errors.New("column index must not be negative")
		}
		if c.Columns == nil {
			c.Columns = make(map[string]int)
		}
		c.Columns[name] = n
		return nil
	}

	floats := map[string]*float64{
		"exchanger.area":                  &c.Exchanger.Area,
		"exchanger.tube_thickness":        &c.Exchanger.TubeThickness,
		"exchanger.tube_inner_diameter":   &c.Exchanger.TubeInnerDiameter,
		"exchanger.tube_outer_diameter":   &c.Exchanger.TubeOuterDiameter,
		"exchanger.shell_outer_diameter":  &c.Exchanger.ShellOuterDiameter,
		"exchanger.shell_inner_diameter":  &c.Exchanger.ShellInnerDiameter,
		"exchanger.steam_inlet_diameter":  &c.Exchanger.SteamInletDiameter,
		"exchanger.length":                &c.Exchanger.Length,
		"exchanger.pitch_longitudinal":    &c.Exchanger.PitchLongitudinal,
		"exchanger.pitch_transverse":      &c.Exchanger.PitchTransverse,
		"exchanger.tube_conductivity":     &c.Exchanger.TubeConductivity,
		"design.condensate_flow":          &c.Design.CondensateFlow,
		"design.cooling_water_flow":       &c.Design.CoolingWaterFlow,
		"catalog.feed_pump_flow":          &c.Catalog.FeedPumpFlow,
		"catalog.recirculation_pump_flow": &c.Catalog.RecirculationPumpFlow,
		"catalog.reference_hz":            &c.Catalog.ReferenceHz,
		"turbine.efficiency":              &c.TurbineEfficiency,
		"u.condensing":                    &c.HeatTransfer.Condensing,
		"u.subcooling":                    &c.HeatTransfer.Subcooling,
		"u.cooling_water":                 &c.HeatTransfer.CoolingWater,
		"u.fouling":                       &c.HeatTransfer.Fouling,
		"tolerance.temperature":           &c.Solver.TemperatureTolerance,
		"tolerance.balance":               &c.Solver.BalanceTolerance,
		"solver.relaxation":               &c.Solver.Relaxation,
	}
	if dst, ok := floats[key]; ok {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		*dst = f
		return nil
	}

	switch key {
	case "exchanger.tubes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		c.Exchanger.Tubes = n
	case "recirculation.units":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		c.Catalog.RecirculationUnits = n
	case "recirculation.mode":
		c.Catalog.RecirculationMode = strings.ToLower(value)
	case "solver.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		c.Solver.MaxIterations = n
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return nil
}

// Validate rejects physically meaningless constants.
func (c Config) Validate() error {
	e := c.Exchanger
	switch {
	case e.Area <= 0:
		return errors.New("exchanger.area must be positive")
	case e.Tubes <= 0:
		return errors.New("exchanger.tubes must be positive")
	case e.TubeInnerDiameter <= 0 || e.TubeOuterDiameter <= e.TubeInnerDiameter:
		return errors.New("tube diameters must satisfy 0 < inner < outer")
	case e.TubeConductivity <= 0:
		return errors.New("exchanger.tube_conductivity must be positive")
	}
	cat := c.Catalog
	switch {
	case cat.FeedPumpFlow < 0 || cat.RecirculationPumpFlow < 0:
		return errors.New("catalog flows must not be negative")
	case cat.ReferenceHz <= 0:
		return errors.New("catalog.reference_hz must be positive")
	case cat.RecirculationUnits < 1:
		return errors.New("recirculation.units must be at least 1")
	case cat.RecirculationMode != ModeMirror && cat.RecirculationMode != ModeMeasured:
		return fmt.Errorf("recirculation.mode %q must be %s or %s", cat.RecirculationMode, ModeMirror, ModeMeasured)
	}
	if c.TurbineEfficiency < 0 || c.TurbineEfficiency > 1 {
		return errors.New("turbine.efficiency must be within [0, 1]")
	}
	ht := c.HeatTransfer
	if ht.Condensing < 0 || ht.Subcooling < 0 || ht.CoolingWater < 0 || ht.Fouling < 0 {
		return errors.New("heat transfer coefficients must not be negative")
	}
	s := c.Solver
	switch {
	case s.MaxIterations <= 0:
		return errors.New("solver.max_iterations must be positive")
	case s.TemperatureTolerance <= 0 || s.BalanceTolerance <= 0:
		return errors.New("tolerances must be positive")
	case s.Relaxation <= 0 || s.Relaxation > 1:
		return errors.New("solver.relaxation must be within (0, 1]")
	}
	return nil
}
