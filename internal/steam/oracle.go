// v0
// internal/steam/oracle.go

// Package steam evaluates thermodynamic properties of water. The Oracle
// interface mirrors a two-input property lookup: two independent state
// variables in, one property out. IF97 is the default implementation.
package steam

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Quantity names a thermodynamic property. All values are SI: K, Pa, J/kg,
// J/(kg·K), kg/m³ and the vapour mass fraction for Q.
type Quantity string

const (
	Temperature Quantity = "T"
	Pressure    Quantity = "P"
	Enthalpy    Quantity = "H"
	Entropy     Quantity = "S"
	Density     Quantity = "D"
	Quality     Quantity = "Q"
	HeatCap     Quantity = "C"
)

// Water is the only fluid the bundled oracle understands.
const Water = "Water"

// ErrPropertyLookup marks a state the oracle could not evaluate.
var ErrPropertyLookup = errors.New("property lookup failed")

// Oracle returns the property out given two independent inputs.
type Oracle interface {
	Props(out Quantity, in1 Quantity, v1 float64, in2 Quantity, v2 float64, fluid string) (float64, error)
}

// LookupError carries the rejected inputs so a failed row can be diagnosed
// from the report alone.
type LookupError struct {
	Out    Quantity
	In1    Quantity
	V1     float64
	In2    Quantity
	V2     float64
	Fluid  string
	Reason string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s(%s=%g, %s=%g) for %s: %s", e.Out, e.In1, e.V1, e.In2, e.V2, e.Fluid, e.Reason)
}

func (e *LookupError) Unwrap() error { return ErrPropertyLookup }

// Vector evaluates the lookup elementwise. A failed element yields NaN and a
// non-nil error at the same index; the other elements are unaffected.
func Vector(o Oracle, out Quantity, in1 Quantity, v1 []float64, in2 Quantity, v2 []float64, fluid string) ([]float64, []error) {
	n := len(v1)
	if len(v2) < n {
		n = len(v2)
	}
	vals := make([]float64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		v, err := o.Props(out, in1, v1[i], in2, v2[i], fluid)
		if err != nil {
			vals[i] = math.NaN()
			errs[i] = err
			continue
		}
		vals[i] = v
	}
	return vals, errs
}

func isWater(fluid string) bool {
	switch strings.ToLower(strings.TrimSpace(fluid)) {
	case "water", "h2o":
		return true
	default:
		return false
	}
}
