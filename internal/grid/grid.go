// Package grid prepares occurrence records and coverage rasters for density
// estimation: it selects per-species training sets, builds the evaluation
// lattice from a raster's geometry, and masks out ocean cells.
package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/lox/specdist/internal/models"
)

// ErrEmptyTrainingSet is returned when a species label matches no records.
var ErrEmptyTrainingSet = errors.New("empty training set")

// DefaultSentinel is the no-data value marking ocean cells in coverage rasters.
const DefaultSentinel = -9999

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Point is a geographic coordinate in radians. Everything downstream of this
// package works in radians; conversion happens exactly once, here.
type Point struct {
	Lat float64
	Lon float64
}

// TrainingSet is the ordered radian coordinates of one species' records.
type TrainingSet []Point

// SelectTrainingSet filters records by exact label match and converts the
// surviving coordinates to radians. Label normalization is the caller's job.
func SelectTrainingSet(records []models.OccurrenceRecord, label string) (TrainingSet, error) {
	var ts TrainingSet
	for _, r := range records {
		if r.Species == label {
			ts = append(ts, Point{Lat: Radians(r.Latitude), Lon: Radians(r.Longitude)})
		}
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: no records for species %q", ErrEmptyTrainingSet, label)
	}
	return ts, nil
}

// Grid is a rectangular evaluation lattice in degrees. Y runs north to south
// so rendered rows match the raster's storage order.
type Grid struct {
	X []float64 // longitudes, west to east
	Y []float64 // latitudes, north first
}

// BuildGrid constructs lattice axes from a raster geometry, subsampled at the
// given stride. Stride 1 reproduces the native resolution exactly.
func BuildGrid(geom models.CoverageGeometry, stride int) (Grid, error) {
	if stride < 1 {
		return Grid{}, fmt.Errorf("stride must be >= 1, got %d", stride)
	}
	if geom.NCols < 2 || geom.NRows < 2 {
		return Grid{}, fmt.Errorf("coverage geometry %dx%d too small for a lattice", geom.NRows, geom.NCols)
	}

	xs := make([]float64, geom.NCols)
	floats.Span(xs, geom.XLLCorner, geom.XLLCorner+geom.CellSize*float64(geom.NCols-1))

	top := geom.YLLCorner + geom.CellSize*float64(geom.NRows-1)
	ys := make([]float64, geom.NRows)
	floats.Span(ys, top, geom.YLLCorner)

	return Grid{X: subsample(xs, stride), Y: subsample(ys, stride)}, nil
}

func subsample(vals []float64, stride int) []float64 {
	out := make([]float64, 0, (len(vals)+stride-1)/stride)
	for i := 0; i < len(vals); i += stride {
		out = append(out, vals[i])
	}
	return out
}

// LandMask marks which lattice cells are land, in row-major order matching
// the grid's Y-then-X flattening.
type LandMask []bool

// BuildLandMask subsamples one coverage at the given stride and marks a cell
// true when its value is strictly greater than the sentinel.
func BuildLandMask(cov *models.Coverage, stride int, sentinel float64) (LandMask, error) {
	if stride < 1 {
		return nil, fmt.Errorf("stride must be >= 1, got %d", stride)
	}
	geom := cov.Geometry
	mask := make(LandMask, 0, ((geom.NRows+stride-1)/stride)*((geom.NCols+stride-1)/stride))
	for row := 0; row < geom.NRows; row += stride {
		for col := 0; col < geom.NCols; col += stride {
			mask = append(mask, cov.At(row, col) > sentinel)
		}
	}
	return mask, nil
}

// Subsample returns the coverage values at the given stride, row-major with
// the north row first. The renderer uses this as its coastline reference.
func Subsample(cov *models.Coverage, stride int) ([]float64, error) {
	if stride < 1 {
		return nil, fmt.Errorf("stride must be >= 1, got %d", stride)
	}
	geom := cov.Geometry
	out := make([]float64, 0, ((geom.NRows+stride-1)/stride)*((geom.NCols+stride-1)/stride))
	for row := 0; row < geom.NRows; row += stride {
		for col := 0; col < geom.NCols; col += stride {
			out = append(out, cov.At(row, col))
		}
	}
	return out, nil
}

// FlattenQueryPoints walks the full Y×X lattice in the mask's flattening
// order, keeps land cells, and emits their coordinates in radians. The
// ordering contract matters: density values scored against these points are
// later scattered back by the same mask order.
func FlattenQueryPoints(g Grid, mask LandMask) ([]Point, error) {
	if len(mask) != len(g.Y)*len(g.X) {
		return nil, fmt.Errorf("mask length %d does not match %dx%d lattice", len(mask), len(g.Y), len(g.X))
	}
	var pts []Point
	i := 0
	for _, lat := range g.Y {
		for _, lon := range g.X {
			if mask[i] {
				pts = append(pts, Point{Lat: Radians(lat), Lon: Radians(lon)})
			}
			i++
		}
	}
	return pts, nil
}
