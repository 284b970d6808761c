package line

import (
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
)

// ViewportKey is the provider key of the Viewport a Plot publishes.
const ViewportKey = "line.viewport"

// Region is a rectangle in fractions of the surface, origin top-left.
type Region struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullRegion covers the whole surface.
var FullRegion = Region{Width: 1, Height: 1}

// IsZero reports whether r has no area.
func (r Region) IsZero() bool { return r.Width <= 0 || r.Height <= 0 }

// Viewport is what a Line needs from its plot to map samples to clip space.
type Viewport struct {
	Region Region
	// X and Y are the visible value ranges. A range with no span is fitted
	// to the data.
	X, Y series.Bounds
	// Exposure is the level-of-detail scalar passed to the compiler.
	Exposure float64
}

// fit returns b, or the data bounds when b has no span. Degenerate data
// bounds are widened to a unit span around their value.
func fit(b, data series.Bounds) series.Bounds {
	if b.Upper > b.Lower {
		return b
	}
	if data.IsEmpty() {
		return series.Bounds{Lower: 0, Upper: 1}
	}
	if data.Span() == 0 {
		return series.Bounds{Lower: data.Lower - 0.5, Upper: data.Upper + 0.5}
	}
	return data
}

// uniforms maps values relative to the precision bases to clip space. Clip
// space runs from -1 at the left and bottom to 1 at the right and top.
func uniforms(vp Viewport, x, y series.Bounds, xBase, yBase float64, color [4]float32, height uint32) render.LineUniforms {
	region := vp.Region
	if region.IsZero() {
		region = FullRegion
	}
	left := -1 + 2*region.Left
	bottom := 1 - 2*(region.Top+region.Height)

	sx := 2 * region.Width / x.Span()
	sy := 2 * region.Height / y.Span()
	ox := left + (xBase-x.Lower)*sx
	oy := bottom + (yBase-y.Lower)*sy

	var px float32
	if height > 0 {
		px = 2 / float32(height)
	}
	return render.LineUniforms{
		Scale:     [2]float32{float32(sx), float32(sy)},
		Offset:    [2]float32{float32(ox), float32(oy)},
		Color:     color,
		Thickness: [2]float32{px, px},
	}
}
