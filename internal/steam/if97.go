// v0
// internal/steam/if97.go
package steam

import "math"

// IF97 is an Oracle backed by the IAPWS-IF97 industrial formulation for
// regions 1, 2 and 4. Supported input pairs are (P,T), (P,H), (P,S), (P,Q)
// and (T,Q) in either order. Region 3 states are reported as lookup errors.
// The zero value is ready to use and safe for concurrent calls.
type IF97 struct{}

// Props implements Oracle.
func (IF97) Props(out Quantity, in1 Quantity, v1 float64, in2 Quantity, v2 float64, fluid string) (float64, error) {
	fail := func(reason string) (float64, error) {
		return math.NaN(), &LookupError{Out: out, In1: in1, V1: v1, In2: in2, V2: v2, Fluid: fluid, Reason: reason}
	}
	if !isWater(fluid) {
		return fail("unsupported fluid")
	}
	if !finite(v1) || !finite(v2) {
		return fail("non-finite input")
	}

	a, va, b, vb := in1, v1, in2, v2
	if b == Pressure || (b == Temperature && a == Quality) {
		a, va, b, vb = b, vb, a, va
	}

	var (
		pt     point
		reason string
	)
	switch {
	case a == Pressure && b == Temperature:
		pt, reason = statePT(va, vb)
	case a == Pressure && b == Enthalpy:
		pt, reason = statePH(va, vb)
	case a == Pressure && b == Entropy:
		pt, reason = statePS(va, vb)
	case a == Pressure && b == Quality:
		pt, reason = statePQ(va, vb)
	case a == Temperature && b == Quality:
		pt, reason = stateTQ(va, vb)
	default:
		return fail("unsupported input pair")
	}
	if reason != "" {
		return fail(reason)
	}

	switch out {
	case Temperature:
		return pt.T, nil
	case Pressure:
		return pt.P, nil
	case Enthalpy:
		return pt.H, nil
	case Entropy:
		return pt.S, nil
	case Density:
		return 1 / pt.V, nil
	case Quality:
		return pt.X, nil
	case HeatCap:
		if pt.X > 0 && pt.X < 1 {
			return fail("heat capacity undefined inside the two-phase dome")
		}
		return pt.Cp, nil
	default:
		return fail("unsupported output")
	}
}

const (
	reasonRange   = "outside IF97 regions 1, 2 and 4"
	reasonRegion3 = "region 3 is not supported"
)

var triplePressure = satPressure(tripleT)

func pressureInRange(p float64) bool { return p > 0 && p <= maxP }

func statePT(p, t float64) (point, string) {
	if !pressureInRange(p) || t < tripleT || t > maxT {
		return point{}, reasonRange
	}
	if t <= r13T {
		if p >= satPressure(t) {
			return region1(p, t), ""
		}
		return region2(p, t), ""
	}
	if t > r2HotT || p <= b23Pressure(t) {
		return region2(p, t), ""
	}
	return point{}, reasonRegion3
}

// property selects the monotonic-in-T quantity an inverse lookup solves for.
type property func(point) float64

func enthalpyOf(pt point) float64 { return pt.H }
func entropyOf(pt point) float64  { return pt.S }

func statePH(p, h float64) (point, string) { return inverse(p, h, enthalpyOf) }
func statePS(p, s float64) (point, string) { return inverse(p, s, entropyOf) }

// inverse finds the state at pressure p where prop equals target. Along an
// isobar both h and s increase with T, so bracketing works in every phase.
func inverse(p, target float64, prop property) (point, string) {
	if !pressureInRange(p) {
		return point{}, reasonRange
	}
	r1 := func(t float64) point { return region1(p, t) }
	r2 := func(t float64) point { return region2(p, t) }

	switch {
	case p < triplePressure:
		return bracket(r2, prop, target, tripleT, maxT)
	case p <= maxSatPressure:
		ts := satTemperature(p)
		liq, vap := region1(p, ts), region2(p, ts)
		fl, fg := prop(liq), prop(vap)
		switch {
		case target < fl:
			return bracket(r1, prop, target, tripleT, ts)
		case target > fg:
			return bracket(r2, prop, target, ts, maxT)
		default:
			return mix(p, ts, (target-fl)/(fg-fl)), ""
		}
	default:
		if target <= prop(region1(p, r13T)) {
			return bracket(r1, prop, target, tripleT, r13T)
		}
		lo := b23Temperature(p)
		if lo > maxT {
			return point{}, reasonRegion3
		}
		if lo < r13T {
			lo = r13T
		}
		if target >= prop(region2(p, lo)) {
			return bracket(r2, prop, target, lo, maxT)
		}
		return point{}, reasonRegion3
	}
}

// bracket bisects T in [lo, hi] until prop(eval(T)) reaches target.
func bracket(eval func(float64) point, prop property, target, lo, hi float64) (point, string) {
	flo, fhi := prop(eval(lo)), prop(eval(hi))
	if target < flo || target > fhi {
		return point{}, reasonRange
	}
	for i := 0; i < 200 && hi-lo > 1e-11; i++ {
		mid := 0.5 * (lo + hi)
		if prop(eval(mid)) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return eval(0.5 * (lo + hi)), ""
}

func statePQ(p, x float64) (point, string) {
	if x < 0 || x > 1 {
		return point{}, "quality outside [0, 1]"
	}
	if p < triplePressure || p > maxSatPressure {
		return point{}, reasonRange
	}
	return mix(p, satTemperature(p), x), ""
}

func stateTQ(t, x float64) (point, string) {
	if x < 0 || x > 1 {
		return point{}, "quality outside [0, 1]"
	}
	if t < tripleT || t > r13T {
		return point{}, reasonRange
	}
	return mix(satPressure(t), t, x), ""
}

// mix blends saturated liquid and vapour at (p, t) with vapour fraction x.
// The saturation boundaries keep their single-phase heat capacity.
func mix(p, t, x float64) point {
	l, g := region1(p, t), region2(p, t)
	switch x {
	case 0:
		l.X = 0
		return l
	case 1:
		g.X = 1
		return g
	}
	return point{
		T:  t,
		P:  p,
		H:  l.H + x*(g.H-l.H),
		S:  l.S + x*(g.S-l.S),
		V:  l.V + x*(g.V-l.V),
		Cp: math.NaN(),
		X:  x,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
