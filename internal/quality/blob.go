package quality

import (
	"math"
)

// AbsentDistance is reported as the face centre distance when no skin blob exists.
const AbsentDistance = math.MaxFloat64

// BlobStats describes the largest 4-connected skin component of a grid.
type BlobStats struct {
	Area               int
	CentroidX          float64
	CentroidY          float64
	MinX, MinY         int
	MaxX, MaxY         int
	FaceAreaRatio      float64
	FaceCenterDistance float64
	BBoxWidthNorm      float64
	BBoxHeightNorm     float64
	FaceLumaStdDev     float64
}

type component struct {
	area                   int
	sumX, sumY             float64
	minX, minY, maxX, maxY int
	lumaSum, lumaSq        float64
}

// ExtractBlob finds the largest connected region of inside skin cells.
// Connectivity is up/down/left/right in grid space. Ties keep the first
// component found in row-major order.
func ExtractBlob(g *Grid) BlobStats {
	stats := BlobStats{FaceCenterDistance: AbsentDistance}
	if g == nil || len(g.Inside) == 0 {
		return stats
	}

	visited := make([]bool, len(g.Inside))
	stack := make([]int, 0, 64)
	var best component

	for seed := range g.Inside {
		if visited[seed] || !g.Inside[seed] || !g.Skin[seed] {
			continue
		}

		c := component{minX: math.MaxInt, minY: math.MaxInt, maxX: math.MinInt, maxY: math.MinInt}
		visited[seed] = true
		stack = append(stack[:0], seed)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			gx, gy := idx%g.W, idx/g.W
			x, y := g.At(gx, gy)
			c.area++
			c.sumX += float64(x)
			c.sumY += float64(y)
			c.minX = min(c.minX, x)
			c.minY = min(c.minY, y)
			c.maxX = max(c.maxX, x)
			c.maxY = max(c.maxY, y)
			c.lumaSum += g.Luma[idx]
			c.lumaSq += g.Luma[idx] * g.Luma[idx]

			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := gx+d[0], gy+d[1]
				if nx < 0 || nx >= g.W || ny < 0 || ny >= g.H {
					continue
				}
				nidx := ny*g.W + nx
				if !visited[nidx] && g.Inside[nidx] && g.Skin[nidx] {
					visited[nidx] = true
					stack = append(stack, nidx)
				}
			}
		}

		if c.area > best.area {
			best = c
		}
	}

	if best.area == 0 {
		return stats
	}

	area := float64(best.area)
	stats.Area = best.area
	stats.CentroidX = best.sumX / area
	stats.CentroidY = best.sumY / area
	stats.MinX, stats.MinY = best.minX, best.minY
	stats.MaxX, stats.MaxY = best.maxX, best.maxY

	if total := g.InsideCount(); total > 0 {
		stats.FaceAreaRatio = area / float64(total)
	}

	roi := g.ROI
	if roi.RX > 0 && roi.RY > 0 {
		dx := (stats.CentroidX - roi.CX) / roi.RX
		dy := (stats.CentroidY - roi.CY) / roi.RY
		stats.FaceCenterDistance = math.Sqrt(dx*dx + dy*dy)
		stats.BBoxWidthNorm = float64(best.maxX-best.minX) / (2 * roi.RX)
		stats.BBoxHeightNorm = float64(best.maxY-best.minY) / (2 * roi.RY)
	}

	mean := best.lumaSum / area
	stats.FaceLumaStdDev = math.Sqrt(math.Max(0, best.lumaSq/area-mean*mean))
	return stats
}
