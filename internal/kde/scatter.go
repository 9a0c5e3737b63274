package kde

import (
	"fmt"

	"github.com/lox/specdist/internal/grid"
)

// DensityField is a 2-D density surface on an evaluation lattice, row-major
// with the north row first. Ocean cells are exactly zero: density is only
// ever evaluated at land query points, by policy, since species occur on
// land.
type DensityField struct {
	NY, NX int
	Values []float64
}

// At returns the density at the given row (0 = northernmost) and column.
func (f *DensityField) At(row, col int) float64 {
	return f.Values[row*f.NX+col]
}

// Max returns the largest value in the field.
func (f *DensityField) Max() float64 {
	var max float64
	for _, v := range f.Values {
		if v > max {
			max = v
		}
	}
	return max
}

// ScatterToGrid places density values into the masked lattice positions, in
// mask flattening order, leaving unmasked positions at exactly 0, and shapes
// the result (ny, nx). The value count must equal the mask's true-cell
// count; a mismatch means the caller broke the query-point ordering contract.
func ScatterToGrid(values []float64, mask grid.LandMask, ny, nx int) (*DensityField, error) {
	if len(mask) != ny*nx {
		return nil, fmt.Errorf("mask length %d does not match %dx%d grid", len(mask), ny, nx)
	}
	field := &DensityField{NY: ny, NX: nx, Values: make([]float64, ny*nx)}
	next := 0
	for i, land := range mask {
		if !land {
			continue
		}
		if next >= len(values) {
			return nil, fmt.Errorf("have %d values for %d masked cells", len(values), countTrue(mask))
		}
		field.Values[i] = values[next]
		next++
	}
	if next != len(values) {
		return nil, fmt.Errorf("have %d values for %d masked cells", len(values), next)
	}
	return field, nil
}

func countTrue(mask grid.LandMask) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}
