// Package kde implements kernel density estimation over geographic points.
// Models are fit per species with no shared state; scores are log densities
// that the caller exponentiates.
package kde

import (
	"errors"
	"fmt"
	"math"

	"github.com/lox/specdist/internal/grid"
)

// ErrInvalidBandwidth is returned by estimator constructors for a
// non-positive bandwidth, before any fitting happens.
var ErrInvalidBandwidth = errors.New("bandwidth must be > 0")

// ErrNotFitted is returned by Score before Fit has been called.
var ErrNotFitted = errors.New("estimator has not been fitted")

// Estimator fits a density model to training points and scores query points.
// Implementations differ only in how the kernel sum is evaluated; swapping
// the brute-force evaluator for the tree-based one never changes results
// beyond the tree's stated tolerance.
type Estimator interface {
	Fit(points []grid.Point) error
	// Score returns the log density at each query point, in query order.
	Score(query []grid.Point) ([]float64, error)
}

// Brute evaluates the kernel sum exactly over every training point. The
// right choice for small training sets, where tree construction costs more
// than it saves.
type Brute struct {
	bandwidth float64
	kernel    Kernel
	metric    Metric
	points    []grid.Point
}

// NewBrute returns an exact kernel density estimator.
func NewBrute(bandwidth float64, kernel Kernel, metric Metric) (*Brute, error) {
	if bandwidth <= 0 {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidBandwidth, bandwidth)
	}
	return &Brute{bandwidth: bandwidth, kernel: kernel, metric: metric}, nil
}

func (b *Brute) Fit(points []grid.Point) error {
	if len(points) == 0 {
		return errors.New("fit requires at least one training point")
	}
	b.points = append([]grid.Point(nil), points...)
	return nil
}

func (b *Brute) Score(query []grid.Point) ([]float64, error) {
	if b.points == nil {
		return nil, ErrNotFitted
	}
	offset := math.Log(float64(len(b.points))) + b.kernel.logNorm(b.bandwidth)
	out := make([]float64, len(query))
	logs := make([]float64, len(b.points))
	for i, q := range query {
		for j, p := range b.points {
			logs[j] = b.kernel.logWeight(b.metric.Distance(q, p), b.bandwidth)
		}
		out[i] = logSumExp(logs) - offset
	}
	return out, nil
}

// logSumExp computes log(Σ exp(v)) without overflow.
func logSumExp(vals []float64) float64 {
	max := math.Inf(-1)
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, v := range vals {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}
