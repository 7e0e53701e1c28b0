// v0
// internal/samples/schema.go
package samples

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Channel names a measured quantity. The string form is the key used by the
// column.<channel> plant property.
type Channel string

const (
	ColdInletPressure             Channel = "cold_inlet_pressure"
	TowerOutletPressure           Channel = "tower_outlet_pressure"
	ExhaustPressure               Channel = "exhaust_pressure"
	TurbineInletPressure          Channel = "turbine_inlet_pressure"
	CondensateTemperature         Channel = "condensate_temperature"
	ColdInletTemperature          Channel = "cold_inlet_temperature"
	CoolingWaterOutletTemperature Channel = "cooling_water_outlet_temperature"
	TurbineInletTemperature       Channel = "turbine_inlet_temperature"
	RecirculationPump1            Channel = "recirculation_pump_1"
	RecirculationPump2            Channel = "recirculation_pump_2"
	TowerFan1                     Channel = "tower_fan_1"
	TowerFan2                     Channel = "tower_fan_2"
	FeedPump                      Channel = "feed_pump"
)

// Unit is the engineering unit a channel is logged in.
type Unit string

const (
	KiloPascal Unit = "kPa"
	Celsius    Unit = "degC"
	Hertz      Unit = "Hz"
)

type channelDef struct {
	column   int
	unit     Unit
	optional bool
}

var defaultChannels = map[Channel]channelDef{
	ColdInletPressure:             {1, KiloPascal, false},
	TowerOutletPressure:           {2, KiloPascal, true},
	ExhaustPressure:               {3, KiloPascal, false},
	TurbineInletPressure:          {5, KiloPascal, false},
	CondensateTemperature:         {6, Celsius, false},
	ColdInletTemperature:          {10, Celsius, false},
	CoolingWaterOutletTemperature: {12, Celsius, true},
	TurbineInletTemperature:       {17, Celsius, false},
	RecirculationPump1:            {19, Hertz, false},
	RecirculationPump2:            {20, Hertz, true},
	TowerFan1:                     {21, Hertz, true},
	TowerFan2:                     {22, Hertz, true},
	FeedPump:                      {23, Hertz, false},
}

// ErrInputSchema marks a row whose measurements do not fit the schema.
var ErrInputSchema = errors.New("input schema violation")

// SchemaError identifies the offending row and channel.
type SchemaError struct {
	Row     int
	Channel Channel
	Column  int
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("row %d: %s (column %d): %s", e.Row, e.Channel, e.Column, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrInputSchema }

// Schema maps channels to table columns.
type Schema struct {
	defs map[Channel]channelDef
}

// DefaultSchema returns the column layout of the plant historian export.
func DefaultSchema() Schema {
	defs := make(map[Channel]channelDef, len(defaultChannels))
	for ch, d := range defaultChannels {
		defs[ch] = d
	}
	return Schema{defs: defs}
}

// NewSchema applies column overrides keyed by channel name to the default
// layout.
func NewSchema(columns map[string]int) (Schema, error) {
	s := DefaultSchema()
	for name, col := range columns {
		d, ok := s.defs[Channel(name)]
		if !ok {
			return Schema{}, fmt.Errorf("unknown channel %q", name)
		}
		if col < 0 {
			return Schema{}, fmt.Errorf("channel %q: negative column %d", name, col)
		}
		d.column = col
		s.defs[Channel(name)] = d
	}
	return s, nil
}

// Require returns a copy of s in which the given channels must be present.
func (s Schema) Require(chs ...Channel) Schema {
	defs := make(map[Channel]channelDef, len(s.defs))
	for ch, d := range s.defs {
		defs[ch] = d
	}
	for _, ch := range chs {
		if d, ok := defs[ch]; ok {
			d.optional = false
			defs[ch] = d
		}
	}
	return Schema{defs: defs}
}

// Column returns the table column of ch.
func (s Schema) Column(ch Channel) int { return s.defs[ch].column }

// Channels lists the schema channels ordered by column.
func (s Schema) Channels() []Channel {
	out := make([]Channel, 0, len(s.defs))
	for ch := range s.defs {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := s.defs[out[i]].column, s.defs[out[j]].column
		if ci != cj {
			return ci < cj
		}
		return out[i] < out[j]
	})
	return out
}

// ColumnSI extracts channel ch from every row converted to SI (K, Pa, Hz).
func (s Schema) ColumnSI(t *Table, ch Channel) []float64 {
	d := s.defs[ch]
	col := t.Column(d.column)
	switch d.unit {
	case KiloPascal:
		floats.Scale(1000, col)
	case Celsius:
		floats.AddConst(273.15, col)
	}
	return col
}

// Reading is one row of measurements in SI units. Optional channels that
// were not logged are NaN.
type Reading struct {
	Row       int
	Timestamp time.Time

	TurbineInletTemperature       float64
	TurbineInletPressure          float64
	ExhaustPressure               float64
	ColdInletTemperature          float64
	ColdInletPressure             float64
	CondensateTemperature         float64
	CoolingWaterOutletTemperature float64
	TowerOutletPressure           float64

	FeedPumpHz      float64
	RecirculationHz []float64
	FanHz           []float64
}

// Read validates row r and converts it to SI.
func (s Schema) Read(t *Table, r int) (Reading, error) {
	rd := Reading{Row: r}
	if ts, ok := t.Timestamp(r); ok {
		rd.Timestamp = ts
	}

	var firstErr error
	get := func(ch Channel) float64 {
		d, ok := s.defs[ch]
		if !ok {
			return math.NaN()
		}
		v, present := t.At(r, d.column)
		if !present {
			if !d.optional && firstErr == nil {
				firstErr = &SchemaError{Row: r, Channel: ch, Column: d.column, Reason: "missing value"}
			}
			return math.NaN()
		}
		if math.IsInf(v, 0) {
			if firstErr == nil {
				firstErr = &SchemaError{Row: r, Channel: ch, Column: d.column, Reason: "non-finite value"}
			}
			return math.NaN()
		}
		switch d.unit {
		case KiloPascal:
			if v <= 0 && firstErr == nil {
				firstErr = &SchemaError{Row: r, Channel: ch, Column: d.column, Reason: fmt.Sprintf("pressure %g kPa must be positive", v)}
			}
			return v * 1000
		case Celsius:
			if v < -273.15 && firstErr == nil {
				firstErr = &SchemaError{Row: r, Channel: ch, Column: d.column, Reason: fmt.Sprintf("temperature %g °C below absolute zero", v)}
			}
			return v + 273.15
		case Hertz:
			if v < 0 && firstErr == nil {
				firstErr = &SchemaError{Row: r, Channel: ch, Column: d.column, Reason: fmt.Sprintf("frequency %g Hz is negative", v)}
			}
			return v
		}
		return v
	}

	rd.TurbineInletTemperature = get(TurbineInletTemperature)
	rd.TurbineInletPressure = get(TurbineInletPressure)
	rd.ExhaustPressure = get(ExhaustPressure)
	rd.ColdInletTemperature = get(ColdInletTemperature)
	rd.ColdInletPressure = get(ColdInletPressure)
	rd.CondensateTemperature = get(CondensateTemperature)
	rd.CoolingWaterOutletTemperature = get(CoolingWaterOutletTemperature)
	rd.TowerOutletPressure = get(TowerOutletPressure)
	rd.FeedPumpHz = get(FeedPump)
	rd.RecirculationHz = []float64{get(RecirculationPump1), get(RecirculationPump2)}
	rd.FanHz = []float64{get(TowerFan1), get(TowerFan2)}

	if firstErr != nil {
		return rd, firstErr
	}
	return rd, nil
}
