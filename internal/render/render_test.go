package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/lox/specdist/internal/grid"
	"github.com/lox/specdist/internal/kde"
)

func testSpec(panels int) FigureSpec {
	g := grid.Grid{
		X: []float64{-70, -69, -68, -67},
		Y: []float64{-17, -18, -19, -20},
	}
	coast := []float64{
		-9999, -9999, 10, 10,
		-9999, 10, 10, 10,
		10, 10, 10, -9999,
		10, 10, -9999, -9999,
	}

	spec := FigureSpec{Grid: g, Coast: coast, Sentinel: -9999, CellSize: 10}
	for i := 0; i < panels; i++ {
		field := &kde.DensityField{NY: 4, NX: 4, Values: make([]float64, 16)}
		for j, v := range coast {
			if v > -9999 {
				field.Values[j] = float64(i+1) * float64(j+1)
			}
		}
		spec.Panels = append(spec.Panels, Panel{Title: "species", Field: field})
	}
	return spec
}

func TestRenderDimensions(t *testing.T) {
	for _, panels := range []int{1, 2, 3} {
		spec := testSpec(panels)
		fig, err := Render(spec)
		if err != nil {
			t.Fatalf("Render(%d panels): %v", panels, err)
		}

		bounds := fig.Image().Bounds()
		panelW := 4 * spec.CellSize
		wantW := 2*margin + panels*panelW + (panels-1)*panelGap
		wantH := 2*margin + 4*spec.CellSize + titleHeight
		if bounds.Dx() != wantW || bounds.Dy() != wantH {
			t.Errorf("%d panels: image %dx%d, want %dx%d", panels, bounds.Dx(), bounds.Dy(), wantW, wantH)
		}
	}
}

func TestRenderOceanStaysBackground(t *testing.T) {
	spec := testSpec(1)
	fig, err := Render(spec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Center of the top-left cell: ocean, away from the coastline, so it
	// must still be the background color.
	img := fig.Image()
	x := margin + spec.CellSize/2
	y := margin + titleHeight + spec.CellSize/2
	if got := img.RGBAAt(x, y); got != background {
		t.Errorf("ocean pixel (%d,%d) = %v, want background %v", x, y, got, background)
	}
}

func TestRenderLandColored(t *testing.T) {
	spec := testSpec(1)
	fig, err := Render(spec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Center of the cell with the panel's maximum density: row 3, col 1.
	img := fig.Image()
	x := margin + 1*spec.CellSize + spec.CellSize/2
	y := margin + titleHeight + 3*spec.CellSize + spec.CellSize/2
	got := img.RGBAAt(x, y)
	if got == background {
		t.Errorf("max-density cell still background colored")
	}
	want := DensityRamp.At(1)
	if got != want {
		t.Errorf("max-density cell = %v, want ramp high %v", got, want)
	}
}

func TestPNGRoundTrip(t *testing.T) {
	fig, err := Render(testSpec(2))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := fig.PNG()
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds() != fig.Image().Bounds() {
		t.Errorf("decoded bounds %v, want %v", img.Bounds(), fig.Image().Bounds())
	}
}

func TestRenderValidation(t *testing.T) {
	t.Run("no panels", func(t *testing.T) {
		spec := testSpec(1)
		spec.Panels = nil
		if _, err := Render(spec); err == nil {
			t.Error("empty panel list accepted")
		}
	})

	t.Run("coast size mismatch", func(t *testing.T) {
		spec := testSpec(1)
		spec.Coast = spec.Coast[:8]
		if _, err := Render(spec); err == nil {
			t.Error("short coast raster accepted")
		}
	})

	t.Run("field shape mismatch", func(t *testing.T) {
		spec := testSpec(1)
		spec.Panels[0].Field = &kde.DensityField{NY: 2, NX: 2, Values: make([]float64, 4)}
		if _, err := Render(spec); err == nil {
			t.Error("mismatched field accepted")
		}
	})
}

func TestNearestSample(t *testing.T) {
	spec := testSpec(2)
	fig, err := Render(spec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// A pixel inside the second panel's row-2, col-2 cell.
	ox := margin + fig.panelW + panelGap
	px := ox + 2*spec.CellSize + 3
	py := margin + titleHeight + 2*spec.CellSize + 3

	lat, lon, value, err := fig.NearestSample(1, px, py)
	if err != nil {
		t.Fatalf("NearestSample: %v", err)
	}
	if lat != spec.Grid.Y[2] || lon != spec.Grid.X[2] {
		t.Errorf("nearest = (%v, %v), want (%v, %v)", lat, lon, spec.Grid.Y[2], spec.Grid.X[2])
	}
	if want := spec.Panels[1].Field.At(2, 2); value != want {
		t.Errorf("value = %v, want %v", value, want)
	}

	if _, _, _, err := fig.NearestSample(5, 0, 0); err == nil {
		t.Error("out-of-range panel accepted")
	}
}

func TestMarchingSquaresTracesBoundary(t *testing.T) {
	// One land cell in the middle of ocean: the contour must form a closed
	// loop around it, one segment per surrounding cell square.
	values := []float64{
		-9999, -9999, -9999,
		-9999, 10, -9999,
		-9999, -9999, -9999,
	}
	segs := marchingSquares(values, 3, 3, -9999)
	if len(segs) != 4 {
		t.Fatalf("got %d segments, want 4", len(segs))
	}

	// All-ocean and all-land lattices have no contour.
	flat := []float64{10, 10, 10, 10}
	if segs := marchingSquares(flat, 2, 2, -9999); len(segs) != 0 {
		t.Errorf("uniform lattice produced %d segments", len(segs))
	}
}
