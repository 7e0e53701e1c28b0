// v0
// internal/steam/region4.go
package steam

import "math"

// Saturation line (IAPWS-IF97 region 4) and the region 2/3 boundary.

var r4N = [11]float64{
	0, // keeps the published 1-based numbering
	0.11670521452767e4, -0.72421316703206e6, -0.17073846940092e2,
	0.12020824702470e5, -0.32325550322333e7, 0.14915108613530e2,
	-0.48232657361591e4, 0.40511340542057e6, -0.23855557567849,
	0.65017534844798e3,
}

const (
	tripleT = 273.15  // K, lower bound of the supported range
	maxT    = 1073.15 // K, upper bound of regions 1-2
	maxP    = 100e6   // Pa
	r13T    = 623.15  // K, region 1/3 boundary temperature
	r2HotT  = 863.15  // K, above this region 2 reaches maxP
)

// satPressure returns the saturation pressure in Pa for t in K.
func satPressure(t float64) float64 {
	n := r4N
	th := t + n[9]/(t-n[10])
	a := th*th + n[1]*th + n[2]
	b := n[3]*th*th + n[4]*th + n[5]
	c := n[6]*th*th + n[7]*th + n[8]
	x := 2 * c / (-b + math.Sqrt(b*b-4*a*c))
	return math.Pow(x, 4) * 1e6
}

// satTemperature returns the saturation temperature in K for p in Pa.
func satTemperature(p float64) float64 {
	n := r4N
	beta := math.Pow(p/1e6, 0.25)
	e := beta*beta + n[3]*beta + n[6]
	f := n[1]*beta*beta + n[4]*beta + n[7]
	g := n[2]*beta*beta + n[5]*beta + n[8]
	d := 2 * g / (-f - math.Sqrt(f*f-4*e*g))
	return (n[10] + d - math.Sqrt((n[10]+d)*(n[10]+d)-4*(n[9]+n[10]*d))) / 2
}

var b23N = [6]float64{0, 0.34805185628969e3, -0.11671859879975e1, 0.10192970039326e-2, 0.57254459862746e3, 0.13918839778870e2}

// b23Pressure is the region 2/3 boundary pressure in Pa at t in K.
func b23Pressure(t float64) float64 {
	return (b23N[1] + b23N[2]*t + b23N[3]*t*t) * 1e6
}

// b23Temperature is the region 2/3 boundary temperature in K at p in Pa.
func b23Temperature(p float64) float64 {
	return b23N[4] + math.Sqrt((p/1e6-b23N[5])/b23N[3])
}

// maxSatPressure is the highest pressure with a region 1/2 saturation state.
var maxSatPressure = satPressure(r13T)
