package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/andresmejia3/shadecheck/internal/types"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

// FFmpegOptions configures a device-backed frame source.
type FFmpegOptions struct {
	Binary      string // ffmpeg executable, "ffmpeg" if empty
	Device      string // e.g. /dev/video0, "0" for avfoundation
	InputFormat string // v4l2, avfoundation, dshow; empty lets ffmpeg guess
	ProbeWidth  int    // probe frames are scaled to this width; 0 keeps the native size
	CaptureDir  string // final captures are written here
	MaxFrame    int    // largest accepted frame in bytes, 32 MiB if zero
}

const defaultMaxFrame = 32 * 1024 * 1024

// FFmpegCamera grabs single frames from a capture device by running ffmpeg
// once per request and reading MJPEG from its stdout.
type FFmpegCamera struct {
	opts FFmpegOptions
}

func NewFFmpeg(opts FFmpegOptions) *FFmpegCamera {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.CaptureDir == "" {
		opts.CaptureDir = os.TempDir()
	}
	if opts.MaxFrame <= 0 {
		opts.MaxFrame = defaultMaxFrame
	}
	return &FFmpegCamera{opts: opts}
}

// Ready reports whether ffmpeg is installed and the device node, if it is a path, exists.
func (c *FFmpegCamera) Ready() bool {
	if _, err := exec.LookPath(c.opts.Binary); err != nil {
		return false
	}
	if strings.HasPrefix(c.opts.Device, "/") {
		if _, err := os.Stat(c.opts.Device); err != nil {
			return false
		}
	}
	return true
}

// RequestFrame grabs one frame. Low latency requests come back decoded and
// downscaled; full requests are written to CaptureDir and returned encoded.
func (c *FFmpegCamera) RequestFrame(ctx context.Context, opts types.FrameOptions) (*types.Frame, error) {
	const op = "grab frame"

	cmd := utils.NewSafeCommand(ctx, c.opts.Binary, c.args(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewFatal(op, fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, NewFatal(op, fmt.Errorf("failed to start %s: %w", c.opts.Binary, err))
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, min(1024*1024, c.opts.MaxFrame)), c.opts.MaxFrame)
	scanner.Split(utils.SplitJpeg)

	var jpeg []byte
	if scanner.Scan() {
		jpeg = append([]byte(nil), scanner.Bytes()...)
	}
	scanErr := scanner.Err()
	// Drain so ffmpeg never blocks on a full pipe before exiting.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if scanErr != nil {
		return nil, NewFatal(op, fmt.Errorf("failed to read frame: %w", scanErr))
	}
	if waitErr != nil {
		return nil, classify(op, waitErr, cmd.Stderr.String())
	}
	if len(jpeg) == 0 {
		return nil, NewTransient(op, errors.New("device produced no frame, not ready"))
	}

	if opts.LowLatency {
		buf, err := Decode(jpeg)
		if err != nil {
			return nil, NewFatal(op, err)
		}
		return &types.Frame{Pixels: buf, Width: buf.Width, Height: buf.Height, MimeType: "image/jpeg"}, nil
	}

	if err := os.MkdirAll(c.opts.CaptureDir, 0755); err != nil {
		return nil, NewFatal(op, fmt.Errorf("failed to create capture dir: %w", err))
	}
	path := filepath.Join(c.opts.CaptureDir, uuid.NewString()+".jpg")
	if err := os.WriteFile(path, jpeg, 0644); err != nil {
		return nil, NewFatal(op, fmt.Errorf("failed to write capture: %w", err))
	}
	return &types.Frame{Encoded: jpeg, Location: path, MimeType: "image/jpeg"}, nil
}

func (c *FFmpegCamera) args(opts types.FrameOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.LowLatency {
		args = append(args, "-fflags", "nobuffer")
	}
	if c.opts.InputFormat != "" {
		args = append(args, "-f", c.opts.InputFormat)
	}
	args = append(args, "-i", c.opts.Device, "-frames:v", "1")
	if opts.LowLatency && c.opts.ProbeWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", c.opts.ProbeWidth))
	}
	args = append(args,
		"-q:v", strconv.Itoa(qscale(opts.Quality)),
		"-f", "image2pipe", "-vcodec", "mjpeg", "-")
	return args
}

// qscale maps a 0..1 quality onto ffmpeg's mjpeg scale, where 2 is best and 31 worst.
func qscale(q float64) int {
	q = math.Max(0, math.Min(1, q))
	return 31 - int(math.Round(q*29))
}
