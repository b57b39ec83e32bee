package quality

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/andresmejia3/shadecheck/internal/types"
	"gonum.org/v1/gonum/stat"
)

// fill returns a w x h buffer painted with a single colour.
func fill(w, h int, r, g, b uint8) *types.PixelBuffer {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return &types.PixelBuffer{Width: w, Height: h, Pix: pix}
}

// noisyFace paints a skin-toned ellipse (scale x the guide radii) with grey
// noise over a cool background. Grey noise shifts Y but leaves Cb/Cr alone.
func noisyFace(w, h int, scale float64, seed int64) *types.PixelBuffer {
	rng := rand.New(rand.NewSource(seed))
	buf := fill(w, h, 70, 100, 150)
	roi := GuideEllipse(w, h)
	face := Ellipse{CX: roi.CX, CY: roi.CY, RX: roi.RX * scale, RY: roi.RY * scale}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 4
			n := rng.Intn(41) - 20
			base := [3]int{70, 100, 150}
			if face.Contains(float64(x), float64(y)) {
				base = [3]int{180, 140, 110}
			}
			for c := 0; c < 3; c++ {
				buf.Pix[off+c] = uint8(base[c] + n)
			}
		}
	}
	return buf
}

func TestIsSkin(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    bool
	}{
		{"Mid skin tone", 200, 150, 120, true},
		{"Near black", 10, 10, 10, false},
		{"Overexposed white", 230, 230, 230, false},
		{"Deep skin tone", 95, 60, 45, true},
		{"Sky blue", 70, 100, 150, false},
		{"Pure green", 0, 255, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkin(tt.r, tt.g, tt.b); got != tt.want {
				t.Errorf("IsSkin(%d,%d,%d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestLuminanceCoefficients(t *testing.T) {
	if got := Luminance(255, 255, 255); math.Abs(got-255) > 1e-9 {
		t.Errorf("white luminance = %f, want 255", got)
	}
	// BT.709 and BT.601 must stay different signals.
	y601, _, _ := ycbcr601(0, 255, 0)
	if math.Abs(Luminance(0, 255, 0)-y601) < 1 {
		t.Errorf("BT.709 and BT.601 luma should differ for pure green, got %f and %f", Luminance(0, 255, 0), y601)
	}
}

func TestGridStep(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{100, 100, 2},
		{320, 480, 2},
		{640, 480, 3},
		{1920, 1080, 6},
		{4000, 3000, 8},
	}
	for _, tt := range tests {
		if got := GridStep(tt.w, tt.h); got != tt.want {
			t.Errorf("GridStep(%d,%d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNewGridInsideMask(t *testing.T) {
	buf := fill(300, 300, 0, 0, 0)
	g := NewGrid(buf)

	if g.Step != 2 {
		t.Fatalf("Expected step 2, got %d", g.Step)
	}
	for gy := 0; gy < g.H; gy++ {
		for gx := 0; gx < g.W; gx++ {
			x, y := g.At(gx, gy)
			want := g.ROI.Contains(float64(x), float64(y))
			if g.Inside[gy*g.W+gx] != want {
				t.Fatalf("cell (%d,%d) inside=%v, want %v", gx, gy, !want, want)
			}
		}
	}

	// Ellipse area / step^2 is a good estimate of the inside count.
	expected := math.Pi * g.ROI.RX * g.ROI.RY / float64(g.Step*g.Step)
	if got := float64(g.InsideCount()); math.Abs(got-expected)/expected > 0.05 {
		t.Errorf("Inside count %v too far from ellipse estimate %v", got, expected)
	}
}

func TestNewGridZeroSized(t *testing.T) {
	for _, buf := range []*types.PixelBuffer{nil, {}, {Width: 10, Height: 0}} {
		g := NewGrid(buf)
		if g.InsideCount() != 0 {
			t.Errorf("Expected empty grid for %+v", buf)
		}
	}
}

// syntheticGrid builds a grid where every cell is inside and only the listed
// cells are skin.
// paint returns a w x h buffer coloured by pick.
func paint(w, h int, pick func(x, y int) (r, g, b uint8)) *types.PixelBuffer {
	buf := fill(w, h, 0, 0, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 4
			buf.Pix[off], buf.Pix[off+1], buf.Pix[off+2] = pick(x, y)
		}
	}
	return buf
}

// stripes alternates black and white columns every step pixels, so each
// sample's right neighbour is the opposite level and its down neighbour the same.
func stripes(w, h, step int) *types.PixelBuffer {
	return paint(w, h, func(x, y int) (uint8, uint8, uint8) {
		if (x/step)%2 == 0 {
			return 0, 0, 0
		}
		return 255, 255, 255
	})
}

func TestMeasureFlatFills(t *testing.T) {
	const eps = 1e-6
	tests := []struct {
		name               string
		r, g, b            uint8
		luma               float64
		dark, bright, cast float64
	}{
		// Y = 0.2126*200 + 0.7152*150 + 0.0722*100 = 157.02
		{"Warm fill", 200, 150, 100, 157.02, 0, 0, 100.0 / 158.02},
		// Y = 0.2126*100 + 0.7152*150 + 0.0722*200 = 142.98
		{"Cool fill", 100, 150, 200, 142.98, 0, 0, -100.0 / 143.98},
		{"Grey just dark", 30, 30, 30, 30, 1, 0, 0},
		{"Grey not dark", 40, 40, 40, 40, 0, 0, 0},
		{"Grey just bright", 230, 230, 230, 230, 0, 1, 0},
		{"Grey not bright", 220, 220, 220, 220, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := fill(200, 150, tt.r, tt.g, tt.b)
			g := NewGrid(buf)
			m := Measure(buf, g)

			if m.Count != g.InsideCount() || m.Count == 0 {
				t.Fatalf("Count = %d, want %d inside samples", m.Count, g.InsideCount())
			}
			if math.Abs(m.MeanLuma-tt.luma) > eps {
				t.Errorf("MeanLuma = %f, want %f", m.MeanLuma, tt.luma)
			}
			if m.DarkRatio != tt.dark || m.BrightRatio != tt.bright {
				t.Errorf("Dark/Bright = %f/%f, want %f/%f", m.DarkRatio, m.BrightRatio, tt.dark, tt.bright)
			}
			if math.Abs(m.CastMagnitude-tt.cast) > eps {
				t.Errorf("CastMagnitude = %f, want %f", m.CastMagnitude, tt.cast)
			}
			if m.Sharpness != 0 {
				t.Errorf("Flat fill should have zero sharpness, got %f", m.Sharpness)
			}
		})
	}
}

func TestMeasureTwoLevelDarkRatio(t *testing.T) {
	const w, h = 200, 150
	// Left half black, right half white.
	buf := paint(w, h, func(x, y int) (uint8, uint8, uint8) {
		if x < w/2 {
			return 0, 0, 0
		}
		return 255, 255, 255
	})
	g := NewGrid(buf)

	var left, total int
	for gy := 0; gy < g.H; gy++ {
		for gx := 0; gx < g.W; gx++ {
			if !g.Inside[gy*g.W+gx] {
				continue
			}
			total++
			if x, _ := g.At(gx, gy); x < w/2 {
				left++
			}
		}
	}
	if left == 0 || left == total {
		t.Fatalf("Setup should put samples on both sides, got %d of %d", left, total)
	}

	m := Measure(buf, g)
	wantDark := float64(left) / float64(total)
	if math.Abs(m.DarkRatio-wantDark) > 1e-9 || math.Abs(m.BrightRatio-(1-wantDark)) > 1e-9 {
		t.Errorf("Dark/Bright = %f/%f, want %f/%f", m.DarkRatio, m.BrightRatio, wantDark, 1-wantDark)
	}
	if math.Abs(m.MeanLuma-255*(1-wantDark)) > 1e-6 {
		t.Errorf("MeanLuma = %f, want %f", m.MeanLuma, 255*(1-wantDark))
	}
}

func TestMeasureSharpnessUsesStepNeighbours(t *testing.T) {
	buf := fill(200, 150, 0, 0, 0)
	step := NewGrid(buf).Step
	buf = stripes(200, 150, step)

	// Right neighbour differs by 255, down neighbour by 0.
	if m := Measure(buf, NewGrid(buf)); math.Abs(m.Sharpness-255) > 1e-6 {
		t.Errorf("Sharpness = %f, want 255", m.Sharpness)
	}
}

func TestMeasureSkipsNeighboursOutsideBuffer(t *testing.T) {
	// At 11x11 the guide reaches the right edge: cell x=9 sits inside the
	// ellipse while x+step falls off the buffer.
	const w, h = 11, 11
	step := GridStep(w, h)
	buf := stripes(w, h, step)
	g := NewGrid(buf)

	edge := false
	for gy := 0; gy < g.H; gy++ {
		for gx := 0; gx < g.W; gx++ {
			x, y := g.At(gx, gy)
			if g.Inside[gy*g.W+gx] && (x+step >= w || y+step >= h) {
				edge = true
			}
		}
	}
	if !edge {
		t.Fatal("Setup should have an inside sample whose neighbour is off the buffer")
	}

	// Counting an edge sample with a missing or clamped neighbour would pull this below 255.
	m := Measure(buf, g)
	if math.Abs(m.Sharpness-255) > 1e-6 {
		t.Errorf("Sharpness = %f, want 255 from in-bounds comparisons only", m.Sharpness)
	}
	if m.Count != g.InsideCount() {
		t.Errorf("Edge samples still count toward the means: Count = %d, want %d", m.Count, g.InsideCount())
	}
}

func syntheticGrid(w, h int, skin func(gx, gy int) bool) *Grid {
	g := &Grid{
		W: w, H: h, Step: 4,
		ROI:    Ellipse{CX: float64(w*4) / 2, CY: float64(h*4) / 2, RX: float64(w*4) / 2, RY: float64(h*4) / 2},
		Inside: make([]bool, w*h),
		Skin:   make([]bool, w*h),
		Luma:   make([]float64, w*h),
	}
	for gy := 0; gy < h; gy++ {
		for gx := 0; gx < w; gx++ {
			i := gy*w + gx
			g.Inside[i] = true
			g.Skin[i] = skin(gx, gy)
			g.Luma[i] = float64(100 + (gx+gy)%7)
		}
	}
	return g
}

func TestExtractBlobPicksLargestComponent(t *testing.T) {
	singletons := map[[2]int]bool{{1, 1}: true, {18, 2}: true, {3, 17}: true, {15, 15}: true, {19, 19}: true}
	g := syntheticGrid(20, 20, func(gx, gy int) bool {
		if gx >= 8 && gx < 13 && gy >= 8 && gy < 13 {
			return true
		}
		return singletons[[2]int{gx, gy}]
	})

	blob := ExtractBlob(g)
	if blob.Area != 25 {
		t.Fatalf("Expected dominant area 25, got %d", blob.Area)
	}

	// Centroid of the 5x5 block: cells 8..12 -> pixels 32..48 -> mean 40.
	if math.Abs(blob.CentroidX-40) > 1e-9 || math.Abs(blob.CentroidY-40) > 1e-9 {
		t.Errorf("Expected centroid (40,40), got (%f,%f)", blob.CentroidX, blob.CentroidY)
	}
	if blob.MinX != 32 || blob.MaxX != 48 || blob.MinY != 32 || blob.MaxY != 48 {
		t.Errorf("Unexpected bbox %d..%d x %d..%d", blob.MinX, blob.MaxX, blob.MinY, blob.MaxY)
	}
	if want := 25.0 / 400.0; math.Abs(blob.FaceAreaRatio-want) > 1e-9 {
		t.Errorf("FaceAreaRatio = %f, want %f", blob.FaceAreaRatio, want)
	}

	// Cross-check the streaming std-dev against gonum on the same samples.
	var lumas []float64
	for gy := 8; gy < 13; gy++ {
		for gx := 8; gx < 13; gx++ {
			lumas = append(lumas, g.Luma[gy*g.W+gx])
		}
	}
	_, variance := stat.PopMeanVariance(lumas, nil)
	if math.Abs(blob.FaceLumaStdDev-math.Sqrt(variance)) > 1e-6 {
		t.Errorf("FaceLumaStdDev = %f, gonum says %f", blob.FaceLumaStdDev, math.Sqrt(variance))
	}
}

func TestExtractBlobIsFourConnected(t *testing.T) {
	// Two 3x3 blocks touching only at a corner must stay separate.
	g := syntheticGrid(10, 10, func(gx, gy int) bool {
		return (gx < 3 && gy < 3) || (gx >= 3 && gx < 6 && gy >= 3 && gy < 6)
	})
	if blob := ExtractBlob(g); blob.Area != 9 {
		t.Errorf("Expected diagonal neighbours to stay apart (area 9), got %d", blob.Area)
	}
}

func TestExtractBlobNoSkin(t *testing.T) {
	g := syntheticGrid(10, 10, func(int, int) bool { return false })
	blob := ExtractBlob(g)
	if blob.Area != 0 || blob.FaceAreaRatio != 0 {
		t.Errorf("Expected empty blob, got %+v", blob)
	}
	if blob.FaceCenterDistance != AbsentDistance {
		t.Errorf("Expected maximal distance for missing face, got %f", blob.FaceCenterDistance)
	}
}

// goodSignals is a frame every check is happy with.
func goodSignals() (Metrics, BlobStats) {
	m := Metrics{
		Count:         4000,
		MeanLuma:      120,
		DarkRatio:     0.05,
		BrightRatio:   0.02,
		CastMagnitude: 0.05,
		Sharpness:     25,
		SkinRatio:     0.5,
	}
	b := BlobStats{
		Area:               2000,
		FaceAreaRatio:      0.5,
		FaceCenterDistance: 0.1,
		BBoxWidthNorm:      0.7,
		BBoxHeightNorm:     0.75,
		FaceLumaStdDev:     12,
	}
	return m, b
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Metrics, *BlobStats)
		wantOK  bool
		wantMsg string
	}{
		{"All good", func(*Metrics, *BlobStats) {}, true, "Ready"},
		{"Too few samples", func(m *Metrics, _ *BlobStats) { m.Count = 499 }, false, "Adjust: " + ReasonFraming},
		{"Dark boundary is not extreme", func(m *Metrics, _ *BlobStats) { m.MeanLuma = 45.0 }, true, "Ready • " + TipDim},
		{"Just below dark boundary", func(m *Metrics, _ *BlobStats) { m.MeanLuma = 44.99 }, false, "Adjust: " + ReasonDark},
		{"Dark ratio extreme", func(m *Metrics, _ *BlobStats) { m.DarkRatio = 0.43 }, false, "Adjust: " + ReasonDark},
		{"Bright extreme", func(m *Metrics, _ *BlobStats) { m.MeanLuma = 216 }, false, "Adjust: " + ReasonBright},
		{"Moderately bright", func(m *Metrics, _ *BlobStats) { m.BrightRatio = 0.3 }, true, "Ready • " + TipHarsh},
		{"Warm cast", func(m *Metrics, _ *BlobStats) { m.CastMagnitude = 0.3 }, true, "Ready • " + TipWarm},
		{"Cool cast", func(m *Metrics, _ *BlobStats) { m.CastMagnitude = -0.3 }, true, "Ready • " + TipCool},
		{"Moderate blur", func(m *Metrics, _ *BlobStats) { m.Sharpness = 14 }, true, "Ready • " + TipSteady},
		{"Extreme blur", func(m *Metrics, _ *BlobStats) { m.Sharpness = 11 }, false, "Adjust: " + ReasonBlur},
		{"Little skin", func(m *Metrics, _ *BlobStats) { m.SkinRatio = 0.1 }, false, "Adjust: " + ReasonCenter},
		{"Off centre", func(_ *Metrics, b *BlobStats) { b.FaceCenterDistance = 0.6 }, false, "Adjust: " + ReasonCenter},
		{"Uniform wall", func(_ *Metrics, b *BlobStats) { b.FaceLumaStdDev = 4 }, false, "Adjust: " + ReasonCenter},
		{"Too far", func(_ *Metrics, b *BlobStats) { b.BBoxWidthNorm = 0.2 }, false, "Adjust: " + ReasonTooFar},
		{"Too close", func(_ *Metrics, b *BlobStats) { b.BBoxHeightNorm = 0.99 }, false, "Adjust: " + ReasonTooClose},
		{
			"At most two reasons",
			func(m *Metrics, b *BlobStats) { m.MeanLuma = 20; m.SkinRatio = 0; m.Sharpness = 1 },
			false,
			"Adjust: " + ReasonDark + " + " + ReasonCenter,
		},
		{
			"Only the first tip",
			func(m *Metrics, _ *BlobStats) { m.MeanLuma = 55; m.CastMagnitude = 0.4; m.Sharpness = 13 },
			true,
			"Ready • " + TipDim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, b := goodSignals()
			tt.mutate(&m, &b)
			got := Evaluate(m, b)
			if got.OK != tt.wantOK || got.Message != tt.wantMsg {
				t.Errorf("Evaluate() = {%v %q}, want {%v %q}", got.OK, got.Message, tt.wantOK, tt.wantMsg)
			}
			if got.Debug == nil {
				t.Error("Expected debug signals to be attached")
			}
		})
	}
}

func TestAssessDegenerateBuffers(t *testing.T) {
	for _, buf := range []*types.PixelBuffer{nil, {}, fill(40, 40, 200, 150, 120)} {
		got := Assess(buf)
		if got.OK {
			t.Errorf("Expected blocked state for tiny buffer, got %+v", got)
		}
		if !strings.Contains(got.Message, ReasonFraming) {
			t.Errorf("Expected framing message, got %q", got.Message)
		}
	}
}

func TestAssessAllBlack(t *testing.T) {
	got := Assess(fill(300, 300, 0, 0, 0))
	if got.OK {
		t.Fatal("All-black frame must not be ready")
	}
	if !strings.Contains(got.Message, ReasonDark) {
		t.Errorf("Expected %q in message, got %q", ReasonDark, got.Message)
	}
}

func TestAssessFlatSkinIsRejected(t *testing.T) {
	got := Assess(fill(300, 300, 180, 140, 110))
	if got.OK {
		t.Fatal("Perfectly flat frame must be rejected as too uniform")
	}
	if !strings.Contains(got.Message, ReasonCenter) {
		t.Errorf("Expected %q in message, got %q", ReasonCenter, got.Message)
	}
	if got.Debug.FaceLumaStdDev >= minFaceLumaStdDev {
		t.Errorf("Expected near-zero luma spread, got %f", got.Debug.FaceLumaStdDev)
	}
}

func TestAssessNoisyFaceIsReady(t *testing.T) {
	got := Assess(noisyFace(300, 300, 0.75, 1))
	if !got.OK || got.Message != "Ready" {
		t.Fatalf("Expected {true Ready}, got {%v %q} debug=%+v", got.OK, got.Message, got.Debug)
	}
	if got.Debug.FaceCenterDistance > 0.05 {
		t.Errorf("Face should be centred, distance %f", got.Debug.FaceCenterDistance)
	}
}

func TestAssessFaceFillingFrameIsTooClose(t *testing.T) {
	got := Assess(noisyFace(300, 300, 5, 2))
	if got.OK || !strings.Contains(got.Message, ReasonTooClose) {
		t.Errorf("Expected %q, got {%v %q}", ReasonTooClose, got.OK, got.Message)
	}
}

func TestAssessImageMatchesBuffer(t *testing.T) {
	buf := noisyFace(200, 240, 0.7, 3)
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			r, g, b := buf.RGB(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}

	want := Assess(buf)
	got := AssessImage(img)
	if got.OK != want.OK || got.Message != want.Message {
		t.Errorf("AssessImage = {%v %q}, Assess = {%v %q}", got.OK, got.Message, want.OK, want.Message)
	}
}

func TestCropToGuideUsesGuideBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 400))
	cropped := CropToGuide(img)
	want := GuideEllipse(300, 400).Bounds(300, 400)
	if cropped.Bounds().Dx() != want.Dx() || cropped.Bounds().Dy() != want.Dy() {
		t.Errorf("Crop is %v, want size of %v", cropped.Bounds(), want)
	}
}
