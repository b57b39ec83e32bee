package types

import (
	"context"
	"time"
)

// PixelBuffer is a decoded frame: row-major RGBA, 4 bytes per pixel.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// RGB returns the colour channels of the pixel at (x, y).
// The caller is responsible for keeping x and y inside the buffer.
func (b *PixelBuffer) RGB(x, y int) (r, g, bl uint8) {
	off := (y*b.Width + x) * 4
	return b.Pix[off], b.Pix[off+1], b.Pix[off+2]
}

// Debug carries the raw signals behind a readiness decision.
type Debug struct {
	MeanLuma           float64 `json:"meanLuma"`
	CastMagnitude      float64 `json:"castMagnitude"`
	Sharpness          float64 `json:"sharpness"`
	SkinRatio          float64 `json:"skinRatio"`
	FaceAreaRatio      float64 `json:"faceAreaRatio"`
	FaceCenterDistance float64 `json:"faceCenterDistance"`
	FaceLumaStdDev     float64 `json:"faceLumaStdDev"`
}

// QualityState is the readiness signal rendered by the capture surface.
type QualityState struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Debug   *Debug `json:"debug,omitempty"`
}

// FrameOptions tells the frame source what kind of frame is wanted.
// Probes ask for a low quality, low latency frame; the shutter asks for the full one.
type FrameOptions struct {
	Quality    float64
	LowLatency bool
	// Approved is the Location of the probe frame whose reading allowed this
	// capture. Sources that replay recorded frames use it to return that frame.
	Approved string
}

// Frame is what a FrameSource hands back. Either Pixels or Encoded is set.
type Frame struct {
	Pixels   *PixelBuffer
	Encoded  []byte
	Width    int
	Height   int
	Location string // where the encoded image was written, if anywhere
	MimeType string
}

// FrameSource is the camera collaborator.
type FrameSource interface {
	// Ready reports whether the device is initialised and usable.
	Ready() bool
	RequestFrame(ctx context.Context, opts FrameOptions) (*Frame, error)
}

// ImageDescriptor is emitted once per session after a successful final capture.
type ImageDescriptor struct {
	Location  string `json:"location"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	SourceTag string `json:"sourceTag"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// FrameTask represents a single image sent to a worker for assessment
type FrameTask struct {
	Index int
	Path  string
	Data  []byte
}

// CaptureRecord is a handed-off capture as persisted in the store.
type CaptureRecord struct {
	ID         string    `json:"id"` // sha256 of the image bytes
	SessionID  string    `json:"sessionId"`
	Location   string    `json:"location"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	SourceTag  string    `json:"sourceTag"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Label      string    `json:"label,omitempty"`
	Readiness  string    `json:"readiness"` // gate message at the time of capture
	Debug      Debug     `json:"debug"`
	CapturedAt time.Time `json:"capturedAt"`
}
