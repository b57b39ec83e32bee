// Package quality turns a raw RGBA frame into a readiness decision for selfie capture.
//
// The pipeline samples a sparse grid over an elliptical guide, classifies each
// sample as skin-like or not, aggregates brightness, colour cast and a blur proxy,
// finds the dominant skin blob, and finally gates the shutter on all of it.
package quality

import (
	"image"
	"math"

	"github.com/andresmejia3/shadecheck/internal/types"
)

// Guide proportions. The crop applied to the final image uses the same values,
// otherwise live guidance and the crop disagree about "centered".
const (
	guideCenterX = 0.5
	guideCenterY = 0.42
	guideRadiusX = 0.34
	guideRadiusY = 0.32
)

const (
	minStep       = 2
	maxStep       = 8
	stepDivisor   = 160
	minROISamples = 500
)

// Ellipse is the region of interest, in pixel coordinates.
type Ellipse struct {
	CX, CY float64
	RX, RY float64
}

// GuideEllipse returns the guide ellipse for a w x h frame.
func GuideEllipse(w, h int) Ellipse {
	return Ellipse{
		CX: float64(w) * guideCenterX,
		CY: float64(h) * guideCenterY,
		RX: float64(w) * guideRadiusX,
		RY: float64(h) * guideRadiusY,
	}
}

// Contains reports whether (x, y) lies on or inside the ellipse.
func (e Ellipse) Contains(x, y float64) bool {
	if e.RX <= 0 || e.RY <= 0 {
		return false
	}
	dx := (x - e.CX) / e.RX
	dy := (y - e.CY) / e.RY
	return dx*dx+dy*dy <= 1
}

// Bounds is the bounding box of the ellipse clipped to a w x h frame.
func (e Ellipse) Bounds(w, h int) image.Rectangle {
	r := image.Rect(
		int(math.Floor(e.CX-e.RX)),
		int(math.Floor(e.CY-e.RY)),
		int(math.Ceil(e.CX+e.RX))+1,
		int(math.Ceil(e.CY+e.RY))+1,
	)
	return r.Intersect(image.Rect(0, 0, w, h))
}

// GridStep is the sampling stride in pixels: clamp(floor(min(w,h)/160), 2, 8).
func GridStep(w, h int) int {
	step := min(w, h) / stepDivisor
	if step < minStep {
		step = minStep
	}
	if step > maxStep {
		step = maxStep
	}
	return step
}

// Grid is the sparse sampling lattice over the ROI bounding box.
// Cell (gx, gy) samples pixel (X0+gx*Step, Y0+gy*Step).
type Grid struct {
	W, H   int
	Step   int
	X0, Y0 int
	ROI    Ellipse

	Inside []bool
	Skin   []bool
	Luma   []float64
}

// NewGrid lays the grid over buf and marks the cells that fall inside the guide.
// Skin and Luma are allocated but left for the classifier and aggregator to fill.
func NewGrid(buf *types.PixelBuffer) *Grid {
	g := &Grid{}
	if buf == nil || buf.Width <= 0 || buf.Height <= 0 || len(buf.Pix) < buf.Width*buf.Height*4 {
		return g
	}

	g.Step = GridStep(buf.Width, buf.Height)
	g.ROI = GuideEllipse(buf.Width, buf.Height)

	box := g.ROI.Bounds(buf.Width, buf.Height)
	if box.Empty() {
		return g
	}
	g.X0, g.Y0 = box.Min.X, box.Min.Y
	g.W = (box.Dx()-1)/g.Step + 1
	g.H = (box.Dy()-1)/g.Step + 1

	n := g.W * g.H
	g.Inside = make([]bool, n)
	g.Skin = make([]bool, n)
	g.Luma = make([]float64, n)

	for gy := 0; gy < g.H; gy++ {
		y := g.Y0 + gy*g.Step
		for gx := 0; gx < g.W; gx++ {
			x := g.X0 + gx*g.Step
			g.Inside[gy*g.W+gx] = g.ROI.Contains(float64(x), float64(y))
		}
	}
	return g
}

// At returns the pixel coordinates of cell (gx, gy).
func (g *Grid) At(gx, gy int) (x, y int) {
	return g.X0 + gx*g.Step, g.Y0 + gy*g.Step
}

// InsideCount is the number of cells inside the ellipse.
func (g *Grid) InsideCount() int {
	n := 0
	for _, in := range g.Inside {
		if in {
			n++
		}
	}
	return n
}
