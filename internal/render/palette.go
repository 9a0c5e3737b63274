package render

import "image/color"

// Ramp is a two-point linear color ramp.
type Ramp struct {
	Low  color.RGBA
	High color.RGBA
}

// At returns the ramp color at t in [0, 1].
func (r Ramp) At(t float64) color.RGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + t*(float64(b)-float64(a)))
	}
	return color.RGBA{
		R: lerp(r.Low.R, r.High.R),
		G: lerp(r.Low.G, r.High.G),
		B: lerp(r.Low.B, r.High.B),
		A: 255,
	}
}

// DensityRamp runs from a neutral low to a warm high, so sparse areas fade
// into the page and hotspots read immediately.
var DensityRamp = Ramp{
	Low:  color.RGBA{240, 240, 240, 255},
	High: color.RGBA{165, 15, 21, 255},
}

// CoastRamp colors the two coastline contour levels from black to white.
var CoastRamp = Ramp{
	Low:  color.RGBA{0, 0, 0, 255},
	High: color.RGBA{255, 255, 255, 255},
}

var (
	background = color.RGBA{255, 255, 255, 255}
	titleColor = color.RGBA{40, 40, 40, 255}
)
