// Package mapper runs the full per-species pipeline: select a training set,
// fit a density model, score the land-masked lattice, and scatter the
// exponentiated densities back onto the grid.
package mapper

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/specdist/internal/grid"
	"github.com/lox/specdist/internal/kde"
	"github.com/lox/specdist/internal/metrics"
	"github.com/lox/specdist/internal/models"
)

// bruteThreshold is the training-set size below which exact brute-force
// evaluation beats building a ball tree.
const bruteThreshold = 64

// Options control one mapping run. Zero values select the defaults.
type Options struct {
	Bandwidth float64    // required, > 0
	Kernel    kde.Kernel // default gaussian
	Metric    kde.Metric // default haversine
	Stride    int        // lattice subsampling, default 5
	Coverage  string     // reference raster name; default first in bundle
	Sentinel  float64    // default grid.DefaultSentinel
}

func (o Options) withDefaults() Options {
	if o.Stride == 0 {
		o.Stride = 5
	}
	if o.Sentinel == 0 {
		o.Sentinel = grid.DefaultSentinel
	}
	return o
}

// SpeciesMap is one species' estimated density surface.
type SpeciesMap struct {
	Label    string
	Field    *kde.DensityField
	Training int // training points used
}

// Result is a full mapping run: the shared lattice, the coastline reference
// raster subsampled to it, and one independent density field per species.
type Result struct {
	Grid     grid.Grid
	Coast    []float64 // reference coverage at lattice resolution, row-major
	Sentinel float64
	Maps     []SpeciesMap
}

// Run estimates a density field for each label over the bundle's land area.
// Each species is fit independently; nothing is shared between fields except
// the lattice they are evaluated on.
func Run(bundle *models.Bundle, labels []string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	cov, err := referenceCoverage(bundle, opts.Coverage)
	if err != nil {
		return nil, err
	}

	g, err := grid.BuildGrid(cov.Geometry, opts.Stride)
	if err != nil {
		return nil, err
	}
	mask, err := grid.BuildLandMask(cov, opts.Stride, opts.Sentinel)
	if err != nil {
		return nil, err
	}
	coast, err := grid.Subsample(cov, opts.Stride)
	if err != nil {
		return nil, err
	}
	query, err := grid.FlattenQueryPoints(g, mask)
	if err != nil {
		return nil, err
	}

	result := &Result{Grid: g, Coast: coast, Sentinel: opts.Sentinel}
	for _, label := range labels {
		sm, err := runSpecies(bundle.Records, label, query, mask, g, opts)
		if err != nil {
			return nil, fmt.Errorf("species %s: %w", label, err)
		}
		result.Maps = append(result.Maps, sm)
	}
	return result, nil
}

func runSpecies(records []models.OccurrenceRecord, label string, query []grid.Point,
	mask grid.LandMask, g grid.Grid, opts Options) (SpeciesMap, error) {

	start := time.Now()

	ts, err := grid.SelectTrainingSet(records, label)
	if err != nil {
		return SpeciesMap{}, err
	}

	est, name, err := newEstimator(len(ts), opts)
	if err != nil {
		return SpeciesMap{}, err
	}
	if err := est.Fit(ts); err != nil {
		return SpeciesMap{}, err
	}
	logDensity, err := est.Score(query)
	if err != nil {
		return SpeciesMap{}, err
	}

	density := make([]float64, len(logDensity))
	for i, ld := range logDensity {
		density[i] = math.Exp(ld)
	}

	field, err := kde.ScatterToGrid(density, mask, len(g.Y), len(g.X))
	if err != nil {
		return SpeciesMap{}, err
	}

	metrics.EstimatesTotal.WithLabelValues(name).Inc()
	metrics.EstimateDuration.Observe(time.Since(start).Seconds())

	return SpeciesMap{Label: label, Field: field, Training: len(ts)}, nil
}

// newEstimator picks brute-force for small training sets and the ball tree
// otherwise. Both honor the same scoring contract.
func newEstimator(n int, opts Options) (kde.Estimator, string, error) {
	if n < bruteThreshold {
		est, err := kde.NewBrute(opts.Bandwidth, opts.Kernel, opts.Metric)
		return est, "brute", err
	}
	est, err := kde.NewBallTree(opts.Bandwidth, opts.Kernel, opts.Metric, 0)
	return est, "balltree", err
}

func referenceCoverage(bundle *models.Bundle, name string) (*models.Coverage, error) {
	if name == "" {
		if len(bundle.Coverages) == 0 {
			return nil, fmt.Errorf("bundle has no coverage rasters")
		}
		return &bundle.Coverages[0], nil
	}
	cov := bundle.Coverage(name)
	if cov == nil {
		return nil, fmt.Errorf("bundle has no coverage %q", name)
	}
	return cov, nil
}
