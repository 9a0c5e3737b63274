package dataset

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"

	"github.com/lox/specdist/internal/models"
)

const (
	indexTolerance = 0.01
	minChildren    = 8
	maxChildren    = 16
	earthRadiusKm  = 6371.0
)

// Index is an R-tree over occurrence records for region-restricted runs.
type Index struct {
	tree *rtreego.Rtree
}

type indexItem struct {
	rec  models.OccurrenceRecord
	rect *rtreego.Rect
}

func (it *indexItem) Bounds() *rtreego.Rect { return it.rect }

// NewIndex builds a spatial index over the given records.
func NewIndex(records []models.OccurrenceRecord) *Index {
	tree := rtreego.NewTree(2, minChildren, maxChildren)
	for _, rec := range records {
		p := rtreego.Point{rec.Latitude, rec.Longitude}
		tree.Insert(&indexItem{rec: rec, rect: p.ToRect(indexTolerance)})
	}
	return &Index{tree: tree}
}

// WithinRect returns the records inside the lat/lon bounding box.
func (ix *Index) WithinRect(latMin, lonMin, latMax, lonMax float64) ([]models.OccurrenceRecord, error) {
	bounds, err := rtreego.NewRect(
		rtreego.Point{latMin, lonMin},
		[]float64{latMax - latMin, lonMax - lonMin},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	var out []models.OccurrenceRecord
	for _, result := range ix.tree.SearchIntersect(bounds) {
		item, ok := result.(*indexItem)
		if !ok {
			continue
		}
		r := item.rec
		if r.Latitude >= latMin && r.Latitude <= latMax &&
			r.Longitude >= lonMin && r.Longitude <= lonMax {
			out = append(out, r)
		}
	}
	return out, nil
}

// WithinRadius returns the records within radiusKm of the center, using a
// bounding-box search refined by great-circle distance.
func (ix *Index) WithinRadius(lat, lon, radiusKm float64) ([]models.OccurrenceRecord, error) {
	deg := (radiusKm / earthRadiusKm) * (180 / math.Pi)

	bounds, err := rtreego.NewRect(
		rtreego.Point{lat - deg, lon - deg},
		[]float64{2 * deg, 2 * deg},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	var out []models.OccurrenceRecord
	for _, result := range ix.tree.SearchIntersect(bounds) {
		item, ok := result.(*indexItem)
		if !ok {
			continue
		}
		r := item.rec
		if haversineKm(lat, lon, r.Latitude, r.Longitude) <= radiusKm {
			out = append(out, r)
		}
	}
	return out, nil
}

// haversineKm is the great-circle distance between two degree coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	lat1r, lat2r := lat1*degToRad, lat2*degToRad
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
