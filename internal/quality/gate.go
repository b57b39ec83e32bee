package quality

import (
	"math"
	"strings"

	"github.com/andresmejia3/shadecheck/internal/types"
)

// Hard blocker thresholds.
const (
	minSkinRatio      = 0.14
	minFaceAreaRatio  = 0.06
	maxCenterDistance = 0.56
	minFaceLumaStdDev = 5
	minBBoxNorm       = 0.28
	maxBBoxNorm       = 0.98
	extremeDarkLuma   = 45
	extremeDarkRatio  = 0.42
	extremeBrightLuma = 215
	extremeBrightRate = 0.36
	blurLimit         = 12
)

// Soft tip thresholds.
const (
	dimLuma      = 60
	dimRatio     = 0.28
	harshLuma    = 200
	harshRatio   = 0.26
	castLimit    = 0.22
	softBlur     = 16
	maxReasons   = 2
	readyMessage = "Ready"
)

// Reasons shown to the user, in priority order.
const (
	ReasonFraming    = "frame your face in the guide"
	ReasonDark       = "find brighter light"
	ReasonBright     = "step out of direct light"
	ReasonCenter     = "center your face"
	ReasonTooFar     = "move closer"
	ReasonTooClose   = "move back"
	ReasonBlur       = "hold still"
	TipDim           = "more light would help"
	TipHarsh         = "light is a bit harsh"
	TipWarm          = "warm tint, try neutral light"
	TipCool          = "cool tint, try neutral light"
	TipSteady        = "hold a little steadier"
	messageSeparator = " • "
)

// Evaluate combines frame metrics and blob stats into a readiness decision.
// Blockers disable the shutter; tips only decorate a "Ready" message.
func Evaluate(m Metrics, blob BlobStats) types.QualityState {
	debug := &types.Debug{
		MeanLuma:           m.MeanLuma,
		CastMagnitude:      m.CastMagnitude,
		Sharpness:          m.Sharpness,
		SkinRatio:          m.SkinRatio,
		FaceAreaRatio:      blob.FaceAreaRatio,
		FaceCenterDistance: blob.FaceCenterDistance,
		FaceLumaStdDev:     blob.FaceLumaStdDev,
	}

	if m.Count < minROISamples {
		return types.QualityState{OK: false, Message: "Adjust: " + ReasonFraming, Debug: debug}
	}

	var blocks, tips []string

	extremeDark := m.MeanLuma < extremeDarkLuma || m.DarkRatio > extremeDarkRatio
	extremeBright := m.MeanLuma > extremeBrightLuma || m.BrightRatio > extremeBrightRate
	if extremeDark {
		blocks = append(blocks, ReasonDark)
	}
	if extremeBright {
		blocks = append(blocks, ReasonBright)
	}

	// Skin coverage, blob size, centring and texture all say the same thing
	// to the user, so they share a single reason.
	facePresent := m.SkinRatio >= minSkinRatio &&
		blob.FaceAreaRatio >= minFaceAreaRatio &&
		blob.FaceCenterDistance <= maxCenterDistance &&
		blob.FaceLumaStdDev >= minFaceLumaStdDev
	if !facePresent {
		blocks = append(blocks, ReasonCenter)
	} else {
		// Size only means something once there is a face to measure.
		if blob.BBoxWidthNorm < minBBoxNorm || blob.BBoxHeightNorm < minBBoxNorm {
			blocks = append(blocks, ReasonTooFar)
		}
		if blob.BBoxWidthNorm > maxBBoxNorm || blob.BBoxHeightNorm > maxBBoxNorm {
			blocks = append(blocks, ReasonTooClose)
		}
	}

	extremeBlur := m.Sharpness < blurLimit
	if extremeBlur {
		blocks = append(blocks, ReasonBlur)
	}

	if !extremeDark && (m.MeanLuma < dimLuma || m.DarkRatio > dimRatio) {
		tips = append(tips, TipDim)
	}
	if !extremeBright && (m.MeanLuma > harshLuma || m.BrightRatio > harshRatio) {
		tips = append(tips, TipHarsh)
	}
	if math.Abs(m.CastMagnitude) > castLimit {
		if m.CastMagnitude > 0 {
			tips = append(tips, TipWarm)
		} else {
			tips = append(tips, TipCool)
		}
	}
	if !extremeBlur && m.Sharpness < softBlur {
		tips = append(tips, TipSteady)
	}

	if len(blocks) > 0 {
		if len(blocks) > maxReasons {
			blocks = blocks[:maxReasons]
		}
		return types.QualityState{OK: false, Message: "Adjust: " + strings.Join(blocks, " + "), Debug: debug}
	}

	msg := readyMessage
	if len(tips) > 0 {
		msg += messageSeparator + tips[0]
	}
	return types.QualityState{OK: true, Message: msg, Debug: debug}
}
