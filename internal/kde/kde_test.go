package kde

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/lox/specdist/internal/grid"
)

func TestInvalidBandwidthRejected(t *testing.T) {
	for _, bw := range []float64{0, -0.5} {
		if _, err := NewBrute(bw, Gaussian, Haversine); !errors.Is(err, ErrInvalidBandwidth) {
			t.Errorf("NewBrute(%v) err = %v, want ErrInvalidBandwidth", bw, err)
		}
		if _, err := NewBallTree(bw, Gaussian, Haversine, 0); !errors.Is(err, ErrInvalidBandwidth) {
			t.Errorf("NewBallTree(%v) err = %v, want ErrInvalidBandwidth", bw, err)
		}
	}
}

func TestScoreBeforeFit(t *testing.T) {
	b, err := NewBrute(0.1, Gaussian, Haversine)
	if err != nil {
		t.Fatalf("NewBrute: %v", err)
	}
	if _, err := b.Score([]grid.Point{{}}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Score before Fit err = %v, want ErrNotFitted", err)
	}
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name string
		a, b grid.Point
		want float64 // central angle, radians
	}{
		{"same point", grid.Point{Lat: 0.5, Lon: 1}, grid.Point{Lat: 0.5, Lon: 1}, 0},
		{"quarter circle on equator", grid.Point{}, grid.Point{Lon: math.Pi / 2}, math.Pi / 2},
		{"pole to equator", grid.Point{Lat: math.Pi / 2}, grid.Point{}, math.Pi / 2},
		{"antipodal", grid.Point{}, grid.Point{Lon: math.Pi}, math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine.Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBruteDensityProperties(t *testing.T) {
	training := []grid.Point{
		{Lat: 0.1, Lon: 0.1},
		{Lat: 0.12, Lon: 0.11},
		{Lat: 0.11, Lon: 0.09},
	}

	b, err := NewBrute(0.05, Gaussian, Haversine)
	if err != nil {
		t.Fatalf("NewBrute: %v", err)
	}
	if err := b.Fit(training); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	near := grid.Point{Lat: 0.11, Lon: 0.1}
	far := grid.Point{Lat: 1.2, Lon: -1.0}
	scores, err := b.Score([]grid.Point{near, far})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	for i, s := range scores {
		if d := math.Exp(s); d < 0 || math.IsNaN(d) {
			t.Errorf("density[%d] = %v, want non-negative", i, d)
		}
	}
	if scores[0] <= scores[1] {
		t.Errorf("log density near %v <= far %v; mass should concentrate at the data", scores[0], scores[1])
	}
}

func randomPoints(rng *rand.Rand, n int) []grid.Point {
	pts := make([]grid.Point, n)
	for i := range pts {
		pts[i] = grid.Point{
			Lat: (rng.Float64() - 0.5) * 1.2,
			Lon: (rng.Float64() - 0.5) * 1.2,
		}
	}
	return pts
}

func TestBallTreeMatchesBrute(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	training := randomPoints(rng, 300)
	query := randomPoints(rng, 50)

	for _, kernel := range []Kernel{Gaussian, Exponential} {
		for _, metric := range []Metric{Haversine, Euclidean} {
			t.Run(kernel.String()+"/"+metric.String(), func(t *testing.T) {
				brute, err := NewBrute(0.1, kernel, metric)
				if err != nil {
					t.Fatalf("NewBrute: %v", err)
				}
				tree, err := NewBallTree(0.1, kernel, metric, 8)
				if err != nil {
					t.Fatalf("NewBallTree: %v", err)
				}
				if err := brute.Fit(training); err != nil {
					t.Fatalf("brute Fit: %v", err)
				}
				if err := tree.Fit(training); err != nil {
					t.Fatalf("tree Fit: %v", err)
				}

				want, err := brute.Score(query)
				if err != nil {
					t.Fatalf("brute Score: %v", err)
				}
				got, err := tree.Score(query)
				if err != nil {
					t.Fatalf("tree Score: %v", err)
				}

				for i := range want {
					if math.Abs(got[i]-want[i]) > 1e-6 {
						t.Fatalf("query %d: tree %v vs brute %v", i, got[i], want[i])
					}
				}
			})
		}
	}
}

func TestBallTreeFitDoesNotAliasInput(t *testing.T) {
	training := randomPoints(rand.New(rand.NewSource(7)), 40)
	tree, err := NewBallTree(0.1, Gaussian, Haversine, 8)
	if err != nil {
		t.Fatalf("NewBallTree: %v", err)
	}
	if err := tree.Fit(training); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	q := []grid.Point{{Lat: 0.1, Lon: 0.1}}
	before, err := tree.Score(q)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := range training {
		training[i] = grid.Point{Lat: 99, Lon: 99}
	}
	after, err := tree.Score(q)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if before[0] != after[0] {
		t.Errorf("score changed after mutating caller slice: %v vs %v", before[0], after[0])
	}
}

func TestScatterToGrid(t *testing.T) {
	mask := grid.LandMask{
		false, false, true, true,
		false, true, true, true,
		true, true, true, false,
		true, true, false, false,
	}
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	field, err := ScatterToGrid(values, mask, 4, 4)
	if err != nil {
		t.Fatalf("ScatterToGrid: %v", err)
	}

	next := 0
	for i, land := range mask {
		row, col := i/4, i%4
		got := field.At(row, col)
		if land {
			if got != values[next] {
				t.Errorf("cell (%d,%d) = %v, want %v", row, col, got, values[next])
			}
			next++
		} else if got != 0 {
			t.Errorf("ocean cell (%d,%d) = %v, want exactly 0", row, col, got)
		}
	}
}

func TestScatterToGrid_CountMismatch(t *testing.T) {
	mask := grid.LandMask{true, true, false, false}
	if _, err := ScatterToGrid([]float64{1}, mask, 2, 2); err == nil {
		t.Error("too few values accepted")
	}
	if _, err := ScatterToGrid([]float64{1, 2, 3}, mask, 2, 2); err == nil {
		t.Error("too many values accepted")
	}
	if _, err := ScatterToGrid([]float64{1, 2}, mask, 3, 2); err == nil {
		t.Error("mask/shape mismatch accepted")
	}
}
