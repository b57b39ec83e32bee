package quality

import (
	"github.com/andresmejia3/shadecheck/internal/types"
)

const (
	darkLuma   = 35
	brightLuma = 225
)

// Metrics are global statistics over every inside sample, skin or not.
type Metrics struct {
	Count         int
	SkinCount     int
	MeanLuma      float64
	DarkRatio     float64
	BrightRatio   float64
	CastMagnitude float64
	Sharpness     float64
	SkinRatio     float64
}

// Measure classifies every inside cell of g and aggregates the frame statistics.
// It fills g.Skin and g.Luma as a side effect so the blob extractor can reuse them.
func Measure(buf *types.PixelBuffer, g *Grid) Metrics {
	var m Metrics
	if buf == nil || g == nil || len(g.Inside) == 0 {
		return m
	}

	var sumY, sumR, sumB, sumGrad float64
	var dark, bright, comparisons int

	for gy := 0; gy < g.H; gy++ {
		for gx := 0; gx < g.W; gx++ {
			idx := gy*g.W + gx
			if !g.Inside[idx] {
				continue
			}
			x, y := g.At(gx, gy)
			r, gr, b := buf.RGB(x, y)

			lum := Luminance(r, gr, b)
			g.Luma[idx] = lum
			if IsSkin(r, gr, b) {
				g.Skin[idx] = true
				m.SkinCount++
			}

			m.Count++
			sumY += lum
			sumR += float64(r)
			sumB += float64(b)
			if lum < darkLuma {
				dark++
			} else if lum > brightLuma {
				bright++
			}

			// Neighbours are read straight from the buffer so samples near
			// the ellipse edge still contribute.
			if x+g.Step < buf.Width && y+g.Step < buf.Height {
				right := Luminance(buf.RGB(x+g.Step, y))
				down := Luminance(buf.RGB(x, y+g.Step))
				sumGrad += abs(lum-right) + abs(lum-down)
				comparisons++
			}
		}
	}

	if m.Count == 0 {
		return m
	}
	n := float64(m.Count)
	m.MeanLuma = sumY / n
	m.DarkRatio = float64(dark) / n
	m.BrightRatio = float64(bright) / n
	m.CastMagnitude = (sumR/n - sumB/n) / (m.MeanLuma + 1)
	m.SkinRatio = float64(m.SkinCount) / n
	if comparisons > 0 {
		m.Sharpness = sumGrad / float64(comparisons)
	}
	return m
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
