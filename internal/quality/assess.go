package quality

import (
	"image"
	"image/draw"

	"github.com/andresmejia3/shadecheck/internal/types"
)

// Assess runs the whole pipeline over one frame. It never fails: a degenerate
// buffer comes back as a blocked state with a framing message.
func Assess(buf *types.PixelBuffer) types.QualityState {
	grid := NewGrid(buf)
	metrics := Measure(buf, grid)
	blob := ExtractBlob(grid)
	return Evaluate(metrics, blob)
}

// AssessImage converts img to RGBA if needed and assesses it.
func AssessImage(img image.Image) types.QualityState {
	return Assess(BufferFromImage(img))
}

// BufferFromImage exposes img as a PixelBuffer. *image.RGBA values with a
// tight stride are wrapped without copying.
func BufferFromImage(img image.Image) *types.PixelBuffer {
	if img == nil {
		return &types.PixelBuffer{}
	}
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == b.Dx()*4 {
		return &types.PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: rgba.Pix}
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &types.PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// CropToGuide returns the part of img covered by the guide ellipse's bounding box.
// It shares the proportions used by live guidance.
func CropToGuide(img image.Image) image.Image {
	b := img.Bounds()
	box := GuideEllipse(b.Dx(), b.Dy()).Bounds(b.Dx(), b.Dy()).Add(b.Min)
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(dst, dst.Bounds(), img, box.Min, draw.Src)
	return dst
}
