// v0
// internal/plant/heat.go
package plant

import "math"

// Coefficients are the overall heat-transfer coefficients per zone in
// W/(m²·K), referenced to the tube outer area.
type Coefficients struct {
	Condensing float64 `json:"condensing_w_m2k"`
	Subcooling float64 `json:"subcooling_w_m2k"`
}

// WallResistance is the tube-wall conduction resistance referenced to the
// outer surface, D_o ln(D_o/D_i) / 2k.
func (c Config) WallResistance() float64 {
	e := c.Exchanger
	return e.TubeOuterDiameter * math.Log(e.TubeOuterDiameter/e.TubeInnerDiameter) / (2 * e.TubeConductivity)
}

// OverallCoefficients combines the shell film of each zone in series with
// the tube wall, the cooling-water film and fouling. A zone whose film
// coefficient is zero transfers no heat.
func (c Config) OverallCoefficients() Coefficients {
	return Coefficients{
		Condensing: c.series(c.HeatTransfer.Condensing),
		Subcooling: c.series(c.HeatTransfer.Subcooling),
	}
}

func (c Config) series(shell float64) float64 {
	ht := c.HeatTransfer
	if shell <= 0 || ht.CoolingWater <= 0 {
		return 0
	}
	e := c.Exchanger
	r := 1/shell + c.WallResistance() + e.TubeOuterDiameter/(e.TubeInnerDiameter*ht.CoolingWater) + ht.Fouling
	return 1 / r
}

// TubeFlowArea is the total tube-side cross-section in m².
func (c Config) TubeFlowArea() float64 {
	d := c.Exchanger.TubeInnerDiameter
	return float64(c.Exchanger.Tubes) * math.Pi * d * d / 4
}

// TubeVelocity returns the mean cooling-water velocity in the tubes for a
// volumetric flow in m³/s.
func (c Config) TubeVelocity(volumeFlow float64) float64 {
	a := c.TubeFlowArea()
	if a <= 0 {
		return 0
	}
	return volumeFlow / a
}
