// v0
// internal/flow/flow.go

// Package flow turns pump frequencies into volumetric flow rates using the
// affinity law V̇ = catalog · f / f_ref.
package flow

import (
	"gonum.org/v1/gonum/floats"

	"nrgchamp/condenser/internal/plant"
	"nrgchamp/condenser/internal/samples"
)

// Volumetric scales catalog (m³/s at refHz) by each frequency in freq.
func Volumetric(catalog, refHz float64, freq []float64) []float64 {
	out := make([]float64, len(freq))
	floats.ScaleTo(out, catalog/refHz, freq)
	return out
}

// Parallel returns the combined flow of redundant parallel pumps. In mirror
// mode the first pump's frequency stands for every unit; in measured mode
// each pump contributes its own logged frequency.
func Parallel(cat plant.Catalog, pumps ...[]float64) []float64 {
	if len(pumps) == 0 {
		return nil
	}
	if cat.RecirculationMode == plant.ModeMeasured {
		sum := make([]float64, len(pumps[0]))
		copy(sum, pumps[0])
		for _, p := range pumps[1:] {
			floats.Add(sum, p)
		}
		return Volumetric(cat.RecirculationPumpFlow, cat.ReferenceHz, sum)
	}
	return Volumetric(float64(cat.RecirculationUnits)*cat.RecirculationPumpFlow, cat.ReferenceHz, pumps[0])
}

// Lines holds one volumetric flow per row for each flow path, in m³/s.
type Lines struct {
	// Steam is the condensate line driven by the boiler feed pump.
	Steam []float64
	// Recirculation is the cooling-water line through the tower pumps.
	Recirculation []float64
}

// At returns both flows of row r.
func (l Lines) At(r int) (steam, recirculation float64) {
	return l.Steam[r], l.Recirculation[r]
}

// Derive computes both flow lines for every row of t. Rows with missing
// frequencies yield NaN and are rejected by the schema before use.
func Derive(cat plant.Catalog, schema samples.Schema, t *samples.Table) Lines {
	feed := schema.ColumnSI(t, samples.FeedPump)
	pumps := [][]float64{schema.ColumnSI(t, samples.RecirculationPump1)}
	if cat.RecirculationMode == plant.ModeMeasured {
		pumps = append(pumps, schema.ColumnSI(t, samples.RecirculationPump2))
	}
	return Lines{
		Steam:         Volumetric(cat.FeedPumpFlow, cat.ReferenceHz, feed),
		Recirculation: Parallel(cat, pumps...),
	}
}
