package worker

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/nfnt/resize"

	"github.com/andresmejia3/shadecheck/internal/camera"
	"github.com/andresmejia3/shadecheck/internal/quality"
	"github.com/andresmejia3/shadecheck/internal/types"
)

// Result is one assessed image.
type Result struct {
	Index  int
	Path   string
	Width  int
	Height int
	State  types.QualityState
	Err    error
}

// AssessWorker turns encoded images into readiness decisions.
type AssessWorker struct {
	ID int

	// MaxWidth downsizes larger images before assessment, the way a live probe
	// would see them. 0 assesses at native size.
	MaxWidth int

	// ReadFile loads task.Path when task.Data is empty.
	ReadFile func(string) ([]byte, error)
}

func NewAssessWorker(id, maxWidth int) *AssessWorker {
	return &AssessWorker{ID: id, MaxWidth: maxWidth, ReadFile: os.ReadFile}
}

// Process assesses a single image. Decode failures are reported in Result.Err.
func (w *AssessWorker) Process(task types.FrameTask) Result {
	res := Result{Index: task.Index, Path: task.Path}

	data := task.Data
	if len(data) == 0 {
		var err error
		if data, err = w.ReadFile(task.Path); err != nil {
			res.Err = fmt.Errorf("worker %d: %w", w.ID, err)
			return res
		}
	}

	img, err := camera.DecodeImage(data)
	if err != nil {
		res.Err = fmt.Errorf("worker %d: %s: %w", w.ID, task.Path, err)
		return res
	}
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	res.State = quality.AssessImage(w.scale(img))
	return res
}

func (w *AssessWorker) scale(img image.Image) image.Image {
	if w.MaxWidth <= 0 || img.Bounds().Dx() <= w.MaxWidth {
		return img
	}
	return resize.Resize(uint(w.MaxWidth), 0, img, resize.Bilinear)
}

// Run starts n workers that drain tasks into results. It closes results once
// every worker has returned, which happens when tasks is closed or ctx is done.
func Run(ctx context.Context, n, maxWidth int, tasks <-chan types.FrameTask, results chan<- Result) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := NewAssessWorker(id, maxWidth)
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-tasks:
					if !ok {
						return
					}
					select {
					case results <- w.Process(task):
					case <-ctx.Done():
						return
					}
				}
			}
		}(i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
}
