package kde

import (
	"fmt"
	"math"

	"github.com/lox/specdist/internal/grid"
)

// Kernel is the smoothing function summed at each training point.
type Kernel int

const (
	Gaussian Kernel = iota
	Exponential
)

// ParseKernel maps a kernel name to its constant.
func ParseKernel(name string) (Kernel, error) {
	switch name {
	case "gaussian":
		return Gaussian, nil
	case "exponential":
		return Exponential, nil
	}
	return 0, fmt.Errorf("unknown kernel %q", name)
}

func (k Kernel) String() string {
	switch k {
	case Gaussian:
		return "gaussian"
	case Exponential:
		return "exponential"
	}
	return fmt.Sprintf("Kernel(%d)", int(k))
}

// logWeight is the unnormalized log kernel value at distance d for
// bandwidth h. Both kernels decrease monotonically in d.
func (k Kernel) logWeight(d, h float64) float64 {
	switch k {
	case Exponential:
		return -d / h
	default:
		u := d / h
		return -0.5 * u * u
	}
}

func (k Kernel) weight(d, h float64) float64 {
	return math.Exp(k.logWeight(d, h))
}

// logNorm is the log of the 2-D normalization constant, so that the scored
// log density integrates to roughly one over the plane. Both kernels happen
// to share the same constant: integrating exp(-r²/2h²) or exp(-r/h) over the
// plane gives 2πh² either way.
func (k Kernel) logNorm(h float64) float64 {
	return math.Log(2 * math.Pi * h * h)
}

// Metric measures distance between two coordinate pairs.
type Metric int

const (
	// Haversine is the great-circle angle between two points on the unit
	// sphere. Coordinates must be radians. This is the right metric for
	// angular data; flat distance over lat/lon is not.
	Haversine Metric = iota
	// Euclidean treats the coordinate pair as a flat 2-D point. Only
	// appropriate for small extents or already-projected data.
	Euclidean
)

// ParseMetric maps a metric name to its constant.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "haversine":
		return Haversine, nil
	case "euclidean":
		return Euclidean, nil
	}
	return 0, fmt.Errorf("unknown metric %q", name)
}

func (m Metric) String() string {
	switch m {
	case Haversine:
		return "haversine"
	case Euclidean:
		return "euclidean"
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// Distance returns the metric distance between a and b.
func (m Metric) Distance(a, b grid.Point) float64 {
	switch m {
	case Euclidean:
		dlat := a.Lat - b.Lat
		dlon := a.Lon - b.Lon
		return math.Sqrt(dlat*dlat + dlon*dlon)
	default:
		return haversine(a, b)
	}
}

// haversine returns the central angle between two radian coordinates on the
// unit sphere. Multiply by the Earth radius for a distance in length units.
func haversine(a, b grid.Point) float64 {
	dLat := b.Lat - a.Lat
	dLon := b.Lon - a.Lon

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat)*math.Cos(b.Lat)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}
