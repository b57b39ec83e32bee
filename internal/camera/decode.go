// Package camera provides frame sources for a capture session and the image decoder
// they share.
package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/andresmejia3/shadecheck/internal/quality"
	"github.com/andresmejia3/shadecheck/internal/types"
)

var ErrEmptyImage = errors.New("empty image data")

// Decode turns encoded image bytes into an RGBA pixel buffer.
// It either returns a complete buffer or an error, never a partial one.
func Decode(data []byte) (*types.PixelBuffer, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return quality.BufferFromImage(img), nil
}

// DecodeImage decodes any registered format (jpeg, png, bmp, tiff, webp).
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("decoded %s image has no pixels", format)
	}
	return img, nil
}
