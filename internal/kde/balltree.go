package kde

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/lox/specdist/internal/grid"
)

const (
	// DefaultLeafSize bounds how many points a leaf holds before the
	// builder splits it.
	DefaultLeafSize = 16

	// defaultRTol is the relative tolerance for pruned node contributions.
	// Tight enough that tree and brute-force scores agree to well below
	// rendering precision.
	defaultRTol = 1e-8
)

// BallTree is a kernel density estimator backed by a ball-tree spatial
// index. Unlike a k-d tree it makes no flat-space assumptions, so it is
// valid under the haversine metric. Node contributions are bracketed by the
// kernel evaluated at the node's nearest and farthest possible member
// distance; a node whose bracket is tight is summed without descending.
type BallTree struct {
	bandwidth float64
	kernel    Kernel
	metric    Metric
	leafSize  int
	rtol      float64

	points []grid.Point // reordered during construction
	root   *ballNode
}

type ballNode struct {
	center      grid.Point
	radius      float64
	start, end  int // index range into points
	left, right *ballNode
}

// NewBallTree returns a tree-based kernel density estimator. A leafSize of 0
// selects DefaultLeafSize.
func NewBallTree(bandwidth float64, kernel Kernel, metric Metric, leafSize int) (*BallTree, error) {
	if bandwidth <= 0 {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidBandwidth, bandwidth)
	}
	if leafSize < 0 {
		return nil, fmt.Errorf("leaf size must be >= 0, got %d", leafSize)
	}
	if leafSize == 0 {
		leafSize = DefaultLeafSize
	}
	return &BallTree{
		bandwidth: bandwidth,
		kernel:    kernel,
		metric:    metric,
		leafSize:  leafSize,
		rtol:      defaultRTol,
	}, nil
}

func (t *BallTree) Fit(points []grid.Point) error {
	if len(points) == 0 {
		return errors.New("fit requires at least one training point")
	}
	t.points = append([]grid.Point(nil), points...)
	t.root = t.build(0, len(t.points))
	return nil
}

func (t *BallTree) build(start, end int) *ballNode {
	n := &ballNode{start: start, end: end}

	var latSum, lonSum float64
	for _, p := range t.points[start:end] {
		latSum += p.Lat
		lonSum += p.Lon
	}
	count := float64(end - start)
	n.center = grid.Point{Lat: latSum / count, Lon: lonSum / count}

	for _, p := range t.points[start:end] {
		if d := t.metric.Distance(n.center, p); d > n.radius {
			n.radius = d
		}
	}

	if end-start <= t.leafSize {
		return n
	}

	// Split at the median of the wider coordinate.
	members := t.points[start:end]
	latLo, latHi := spread(members, func(p grid.Point) float64 { return p.Lat })
	lonLo, lonHi := spread(members, func(p grid.Point) float64 { return p.Lon })
	byLat := latHi-latLo >= lonHi-lonLo
	sort.Slice(members, func(i, j int) bool {
		if byLat {
			return members[i].Lat < members[j].Lat
		}
		return members[i].Lon < members[j].Lon
	})

	mid := start + (end-start)/2
	n.left = t.build(start, mid)
	n.right = t.build(mid, end)
	return n
}

func spread(pts []grid.Point, dim func(grid.Point) float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		v := dim(p)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func (t *BallTree) Score(query []grid.Point) ([]float64, error) {
	if t.root == nil {
		return nil, ErrNotFitted
	}
	offset := math.Log(float64(len(t.points))) + t.kernel.logNorm(t.bandwidth)
	out := make([]float64, len(query))
	for i, q := range query {
		out[i] = math.Log(t.accumulate(t.root, q)) - offset
	}
	return out, nil
}

// accumulate returns the kernel sum over the node's members, descending only
// where the bound on the node's contribution is too loose.
func (t *BallTree) accumulate(n *ballNode, q grid.Point) float64 {
	d := t.metric.Distance(q, n.center)
	dmin := math.Max(0, d-n.radius)
	dmax := d + n.radius

	// Kernels decrease with distance, so the nearest possible member gives
	// the per-point upper bound and the farthest the lower bound.
	upper := t.kernel.weight(dmin, t.bandwidth)
	lower := t.kernel.weight(dmax, t.bandwidth)
	count := float64(n.end - n.start)

	if upper-lower <= t.rtol*(lower+upper)/2 {
		return count * (lower + upper) / 2
	}

	if n.left == nil {
		var sum float64
		for _, p := range t.points[n.start:n.end] {
			sum += t.kernel.weight(t.metric.Distance(q, p), t.bandwidth)
		}
		return sum
	}

	return t.accumulate(n.left, q) + t.accumulate(n.right, q)
}
