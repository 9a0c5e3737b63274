package models

import (
	"sort"
	"time"
)

// OccurrenceRecord is a single species sighting. Coordinates are in degrees,
// exactly as they appear in the source dataset.
type OccurrenceRecord struct {
	Species   string
	Latitude  float64
	Longitude float64
}

// CoverageGeometry describes the lattice a coverage raster is sampled on.
// Rasters are stored north row first, matching the ASCII grid format.
type CoverageGeometry struct {
	NCols     int
	NRows     int
	XLLCorner float64 // longitude of the lower-left cell, degrees
	YLLCorner float64 // latitude of the lower-left cell, degrees
	CellSize  float64 // degrees per cell, both axes
	NoData    float64 // sentinel marking ocean / missing samples
}

// Coverage is one named environmental raster from the dataset bundle.
type Coverage struct {
	Name     string
	Geometry CoverageGeometry
	Values   []float64 // row-major, north row first, len = NRows*NCols
}

// At returns the sample at the given row (0 = northernmost) and column.
func (c *Coverage) At(row, col int) float64 {
	return c.Values[row*c.Geometry.NCols+col]
}

// Bundle is the parsed dataset: occurrence records plus coverage rasters.
type Bundle struct {
	Records   []OccurrenceRecord
	Coverages []Coverage
	FetchedAt time.Time
}

// Coverage returns the named raster, or nil if the bundle has no such coverage.
func (b *Bundle) Coverage(name string) *Coverage {
	for i := range b.Coverages {
		if b.Coverages[i].Name == name {
			return &b.Coverages[i]
		}
	}
	return nil
}

// Species returns the distinct species labels in the bundle, sorted.
func (b *Bundle) Species() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range b.Records {
		if !seen[r.Species] {
			seen[r.Species] = true
			labels = append(labels, r.Species)
		}
	}
	sort.Strings(labels)
	return labels
}

// SpeciesCount pairs a species label with its record count.
type SpeciesCount struct {
	Species string
	Count   int
}
