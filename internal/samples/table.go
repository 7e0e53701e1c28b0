// v0
// internal/samples/table.go

// Package samples holds the numeric sample table, the fixed-position
// channel schema and the CSV loader that produces tables from plant exports.
package samples

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Table is an immutable rows × columns matrix of raw plant measurements.
// Cells absent from a short input row are stored as NaN and the row's
// input width is kept so callers can tell padding from data.
type Table struct {
	data   *mat.Dense
	widths []int
	times  []time.Time
}

// NewTable copies rows into a Table. times is optional; when non-nil it must
// have one entry per row (a zero time means "no timestamp").
func NewTable(rows [][]float64, times []time.Time) *Table {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	t := &Table{widths: make([]int, len(rows))}
	if len(rows) > 0 && cols > 0 {
		t.data = mat.NewDense(len(rows), cols, nil)
		for i, r := range rows {
			for j := 0; j < cols; j++ {
				if j < len(r) {
					t.data.Set(i, j, r[j])
				} else {
					t.data.Set(i, j, math.NaN())
				}
			}
			t.widths[i] = len(r)
		}
	}
	if times != nil {
		t.times = make([]time.Time, len(rows))
		copy(t.times, times)
	}
	return t
}

// Rows returns the number of sample rows.
func (t *Table) Rows() int { return len(t.widths) }

// Cols returns the widest row's column count.
func (t *Table) Cols() int {
	if t.data == nil {
		return 0
	}
	_, c := t.data.Dims()
	return c
}

// Width returns the number of cells present in row r of the input.
func (t *Table) Width(r int) int { return t.widths[r] }

// At returns the cell and false when it is padding or NaN.
func (t *Table) At(r, c int) (float64, bool) {
	if r < 0 || r >= t.Rows() || c < 0 || c >= t.widths[r] {
		return math.NaN(), false
	}
	v := t.data.At(r, c)
	return v, !math.IsNaN(v)
}

// Row returns a copy of row r including NaN padding.
func (t *Table) Row(r int) []float64 {
	if t.data == nil {
		return nil
	}
	return mat.Row(nil, r, t.data)
}

// Column returns a copy of column c. Columns beyond the table width yield
// all-NaN slices so that schema lookups never panic.
func (t *Table) Column(c int) []float64 {
	if c < 0 || c >= t.Cols() {
		out := make([]float64, t.Rows())
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	return mat.Col(nil, c, t.data)
}

// Timestamp returns the timestamp of row r when one was supplied.
func (t *Table) Timestamp(r int) (time.Time, bool) {
	if t.times == nil || r < 0 || r >= len(t.times) || t.times[r].IsZero() {
		return time.Time{}, false
	}
	return t.times[r], true
}
