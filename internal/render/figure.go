// Package render draws species density maps: one filled-contour panel per
// species with a coastline overlay, composed side by side into a single PNG.
// Rendering is explicit, a FigureSpec in and a Figure value out, with no
// process-wide drawing context.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/specdist/internal/grid"
	"github.com/lox/specdist/internal/kde"
	"github.com/lox/specdist/internal/metrics"
)

// levels is the number of quantized bands in a filled contour, spanning zero
// to the panel's maximum density.
const levels = 25

const (
	titleHeight = 18
	panelGap    = 8
	margin      = 8
)

// Panel is one species' density surface and its caption.
type Panel struct {
	Title string
	Field *kde.DensityField
}

// FigureSpec describes a figure to render. Coast is the reference coverage
// at lattice resolution; cells at or below Sentinel are ocean.
type FigureSpec struct {
	Grid     grid.Grid
	Coast    []float64
	Sentinel float64
	Panels   []Panel

	// CellSize is pixels per lattice cell; 0 picks a size that keeps
	// panels near 600px wide.
	CellSize int
}

// Figure is a rendered multi-panel density map.
type Figure struct {
	spec   FigureSpec
	img    *image.RGBA
	scale  int
	panelW int
	panelH int
}

// Render draws the figure described by spec.
func Render(spec FigureSpec) (*Figure, error) {
	ny, nx := len(spec.Grid.Y), len(spec.Grid.X)
	if ny == 0 || nx == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	if len(spec.Coast) != ny*nx {
		return nil, fmt.Errorf("coast raster has %d cells, want %d", len(spec.Coast), ny*nx)
	}
	if len(spec.Panels) == 0 {
		return nil, fmt.Errorf("figure has no panels")
	}
	for _, p := range spec.Panels {
		if p.Field.NY != ny || p.Field.NX != nx {
			return nil, fmt.Errorf("panel %q field is %dx%d, grid is %dx%d",
				p.Title, p.Field.NY, p.Field.NX, ny, nx)
		}
	}

	scale := spec.CellSize
	if scale <= 0 {
		scale = 600 / nx
		if scale < 1 {
			scale = 1
		}
	}

	f := &Figure{
		spec:   spec,
		scale:  scale,
		panelW: nx * scale,
		panelH: ny*scale + titleHeight,
	}

	width := 2*margin + len(spec.Panels)*f.panelW + (len(spec.Panels)-1)*panelGap
	height := 2*margin + f.panelH
	f.img = image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(f.img, f.img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	// The two coastline levels straddle the sentinel and trace near-identical
	// curves; the black one is drawn last so it stays visible where the
	// rasterized lines coincide.
	coastLevels := []struct {
		level float64
		color color.RGBA
	}{
		{spec.Sentinel + 1, CoastRamp.At(1)},
		{spec.Sentinel, CoastRamp.At(0)},
	}

	for i, p := range spec.Panels {
		ox := margin + i*(f.panelW+panelGap)
		oy := margin

		f.drawField(p.Field, ox, oy+titleHeight)
		for _, cl := range coastLevels {
			f.drawContour(spec.Coast, cl.level, cl.color, ox, oy+titleHeight)
		}
		f.drawTitle(p.Title, ox, oy)
	}

	metrics.RendersTotal.Inc()
	return f, nil
}

// drawField fills the panel with quantized density bands. Ocean cells stay
// at the background color regardless of the field, which holds them at zero
// anyway.
func (f *Figure) drawField(field *kde.DensityField, ox, oy int) {
	max := field.Max()
	for row := 0; row < field.NY; row++ {
		for col := 0; col < field.NX; col++ {
			if f.spec.Coast[row*field.NX+col] <= f.spec.Sentinel {
				continue
			}
			var band float64
			if max > 0 {
				band = math.Floor(field.At(row, col) / max * (levels - 1))
			}
			c := DensityRamp.At(band / (levels - 1))
			fillRect(f.img, ox+col*f.scale, oy+row*f.scale, f.scale, f.scale, c)
		}
	}
}

func (f *Figure) drawContour(values []float64, level float64, c color.RGBA, ox, oy int) {
	ny, nx := len(f.spec.Grid.Y), len(f.spec.Grid.X)
	half := float64(f.scale) / 2
	for _, s := range marchingSquares(values, ny, nx, level) {
		drawLine(f.img,
			float64(ox)+s.x1*float64(f.scale)+half,
			float64(oy)+s.y1*float64(f.scale)+half,
			float64(ox)+s.x2*float64(f.scale)+half,
			float64(oy)+s.y2*float64(f.scale)+half,
			c)
	}
}

func (f *Figure) drawTitle(title string, ox, oy int) {
	d := &font.Drawer{
		Dst:  f.img,
		Src:  image.NewUniform(titleColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(ox), Y: fixed.I(oy + 12)},
	}
	d.DrawString(title)
}

// Image returns the rendered RGBA image.
func (f *Figure) Image() *image.RGBA { return f.img }

// PNG encodes the figure as PNG bytes.
func (f *Figure) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.img); err != nil {
		return nil, fmt.Errorf("encode figure: %w", err)
	}
	return buf.Bytes(), nil
}

// NearestSample maps a pixel position inside a panel to the closest lattice
// sample, for embedding UIs that want hover inspection over the static
// image. Returns the sample's latitude, longitude (degrees) and density.
func (f *Figure) NearestSample(panel, px, py int) (lat, lon, value float64, err error) {
	if panel < 0 || panel >= len(f.spec.Panels) {
		return 0, 0, 0, fmt.Errorf("panel %d out of range", panel)
	}
	ox := margin + panel*(f.panelW+panelGap)
	oy := margin + titleHeight

	col := (px - ox) / f.scale
	row := (py - oy) / f.scale
	col = clamp(col, 0, len(f.spec.Grid.X)-1)
	row = clamp(row, 0, len(f.spec.Grid.Y)-1)

	return f.spec.Grid.Y[row], f.spec.Grid.X[col], f.spec.Panels[panel].Field.At(row, col), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fillRect(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawLine draws a 1px line by sampling along the segment. Crude next to a
// real rasterizer, but coastlines are short segments on a coarse lattice.
func drawLine(img *image.RGBA, x1, y1, x2, y2 float64, c color.RGBA) {
	dx, dy := x2-x1, y2-y1
	steps := int(math.Max(math.Abs(dx), math.Abs(dy))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		img.SetRGBA(int(math.Round(x1+t*dx)), int(math.Round(y1+t*dy)), c)
	}
}
