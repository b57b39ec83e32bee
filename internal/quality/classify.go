package quality

// Both rules are deliberately loose. Rejecting a real face costs the user a
// re-prompt loop, accepting a borderline frame costs one slightly worse reading.

// IsSkin reports whether an RGB sample looks like skin under either rule.
func IsSkin(r, g, b uint8) bool {
	return skinRGB(r, g, b) || skinYCbCr(r, g, b)
}

func skinRGB(r8, g8, b8 uint8) bool {
	r, g, b := int(r8), int(g8), int(b8)
	if r <= 45 || g <= 18 || b <= 12 {
		return false
	}
	if r < g || r < b {
		return false
	}
	diff := r - g
	if diff < 0 {
		diff = -diff
	}
	spread := max(r, g, b) - min(r, g, b)
	return diff > 8 && spread > 12
}

// skinYCbCr uses full-range ITU-R BT.601 coefficients.
func skinYCbCr(r8, g8, b8 uint8) bool {
	y, cb, cr := ycbcr601(r8, g8, b8)
	return y > 28 && cb >= 75 && cb <= 145 && cr >= 132 && cr <= 190
}

func ycbcr601(r8, g8, b8 uint8) (y, cb, cr float64) {
	r, g, b := float64(r8), float64(g8), float64(b8)
	y = 0.299*r + 0.587*g + 0.114*b
	cb = 128 - 0.168736*r - 0.331264*g + 0.5*b
	cr = 128 + 0.5*r - 0.418688*g - 0.081312*b
	return y, cb, cr
}

// Luminance is ITU-R BT.709 relative luminance on 0..255 channels.
// It is a separate brightness signal from the BT.601 luma used for skin.
func Luminance(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}
