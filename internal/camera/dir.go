package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"

	"github.com/andresmejia3/shadecheck/internal/quality"
	"github.com/andresmejia3/shadecheck/internal/types"
)

// DirSource replays the images in a directory as if they came from a camera.
// Each probe serves the next image. A full capture returns the image named by
// FrameOptions.Approved, or the one probed last when no approval is given.
type DirSource struct {
	files      []string
	probeWidth int

	mu   sync.Mutex
	next int
	last int
}

func NewDirSource(dir string, probeWidth int) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		mt, err := mimetype.DetectFile(path)
		if err != nil || !strings.HasPrefix(mt.String(), "image/") {
			continue
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(files)

	return &DirSource{files: files, probeWidth: probeWidth}, nil
}

func (s *DirSource) Ready() bool { return len(s.files) > 0 }

// Files lists the images being replayed, in order.
func (s *DirSource) Files() []string { return s.files }

func (s *DirSource) RequestFrame(ctx context.Context, opts types.FrameOptions) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	idx := s.last
	if opts.LowLatency {
		idx = s.next % len(s.files)
		s.last = idx
		s.next++
	} else if i := s.index(opts.Approved); i >= 0 {
		idx = i
	}
	s.mu.Unlock()

	path := s.files[idx]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewFatal("read frame", err)
	}

	if !opts.LowLatency {
		return &types.Frame{Encoded: data, Location: path, MimeType: mimetype.Detect(data).String()}, nil
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, NewFatal("read frame", fmt.Errorf("%s: %w", path, err))
	}
	if s.probeWidth > 0 && img.Bounds().Dx() > s.probeWidth {
		img = resize.Resize(uint(s.probeWidth), 0, img, resize.Bilinear)
	}
	buf := quality.BufferFromImage(img)
	return &types.Frame{Pixels: buf, Width: buf.Width, Height: buf.Height, Location: path}, nil
}

func (s *DirSource) index(path string) int {
	if path == "" {
		return -1
	}
	for i, f := range s.files {
		if f == path {
			return i
		}
	}
	return -1
}
