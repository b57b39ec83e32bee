package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/andresmejia3/shadecheck/internal/types"
	"github.com/andresmejia3/shadecheck/internal/utils"
	"github.com/andresmejia3/shadecheck/internal/worker"
)

var assessOpts Options

var assessCmd = &cobra.Command{
	Use:   "assess <image|dir>...",
	Short: "Run the readiness gate over still images",
	Long:  "Assesses every image with the same checks a live capture session applies, in parallel, and prints one verdict per image in input order.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAssess(cmd.Context(), args, assessOpts, os.Stdout)
	},
}

func init() {
	assessCmd.Flags().IntVarP(&assessOpts.NumEngines, "engines", "e", runtime.NumCPU(), "Number of parallel assessment workers")
	assessCmd.Flags().IntVarP(&assessOpts.ProbeWidth, "probe-width", "w", 0, "Downscale images wider than this before assessing (0 = native size)")
	assessCmd.Flags().BoolVar(&assessOpts.JSON, "json", false, "Print one JSON object per image instead of text")
	rootCmd.AddCommand(assessCmd)
}

// assessLine is the JSON form of one verdict.
type assessLine struct {
	Path   string             `json:"path"`
	Width  int                `json:"width,omitempty"`
	Height int                `json:"height,omitempty"`
	Result types.QualityState `json:"result"`
	Error  string             `json:"error,omitempty"`
}

// runAssess orchestrates the batch: worker pool, ordered output and the summary.
func runAssess(ctx context.Context, inputs []string, opts Options, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateAssessFlags(&opts); err != nil {
		return err
	}

	paths, err := utils.CollectImages(inputs)
	if err != nil {
		return utils.ReportError("Failed to collect images", err, nil)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found in %s", strings.Join(inputs, ", "))
	}

	fmt.Fprintf(os.Stderr, "⚙️  Assessing %d images with %d workers...\n", len(paths), opts.NumEngines)
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("🔍 Assessing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	tasks := make(chan types.FrameTask, opts.NumEngines)
	results := make(chan worker.Result, opts.NumEngines*2)
	worker.Run(ctx, opts.NumEngines, opts.ProbeWidth, tasks, results)

	go func() {
		defer close(tasks)
		for i, p := range paths {
			select {
			case tasks <- types.FrameTask{Index: i, Path: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := json.NewEncoder(out)
	var ordered []worker.Result
	var writeErr error
	inOrder(results, func(r worker.Result) {
		bar.Add(1)
		ordered = append(ordered, r)
		if writeErr != nil {
			return
		}
		if opts.JSON {
			line := assessLine{Path: r.Path, Width: r.Width, Height: r.Height, Result: r.State}
			if r.Err != nil {
				line.Error = r.Err.Error()
			}
			writeErr = enc.Encode(line)
			return
		}
		writeErr = writeVerdict(out, r)
	})
	bar.Finish()

	if err := ctx.Err(); err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write results: %w", writeErr)
	}

	printSummary(os.Stderr, summarize(ordered))
	return nil
}

// inOrder re-sequences results by Index (worker 2 might finish before worker 1)
// and hands them to emit strictly in order.
func inOrder(results <-chan worker.Result, emit func(worker.Result)) {
	buffer := make(map[int]worker.Result)
	next := 0
	for res := range results {
		buffer[res.Index] = res
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			emit(r)
			next++
		}
	}
}

func writeVerdict(w io.Writer, r worker.Result) error {
	var err error
	switch {
	case r.Err != nil:
		_, err = fmt.Fprintf(w, "⚠️  %s: %v\n", r.Path, r.Err)
	case r.State.OK:
		_, err = fmt.Fprintf(w, "✅ %s: %s\n", r.Path, r.State.Message)
	default:
		_, err = fmt.Fprintf(w, "❌ %s: %s\n", r.Path, r.State.Message)
	}
	return err
}

type metricSummary struct {
	Mean, StdDev, Median float64
}

type assessSummary struct {
	Total, Ready, Blocked, Failed int
	Reasons                       map[string]int
	MeanLuma, Sharpness, Cast     metricSummary
}

func summarize(results []worker.Result) assessSummary {
	s := assessSummary{Total: len(results), Reasons: make(map[string]int)}
	var luma, sharp, cast []float64
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		if r.State.OK {
			s.Ready++
		} else {
			s.Blocked++
			for _, reason := range strings.Split(strings.TrimPrefix(r.State.Message, "Adjust: "), " + ") {
				s.Reasons[reason]++
			}
		}
		if d := r.State.Debug; d != nil {
			luma = append(luma, d.MeanLuma)
			sharp = append(sharp, d.Sharpness)
			cast = append(cast, d.CastMagnitude)
		}
	}
	s.MeanLuma = describe(luma)
	s.Sharpness = describe(sharp)
	s.Cast = describe(cast)
	return s
}

func describe(xs []float64) metricSummary {
	if len(xs) == 0 {
		return metricSummary{}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return metricSummary{Mean: mean, StdDev: std, Median: stat.Quantile(0.5, stat.Empirical, sorted, nil)}
}

func printSummary(w io.Writer, s assessSummary) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 ASSESS SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "✅ Ready:    %d\n", s.Ready)
	fmt.Fprintf(w, "❌ Blocked:  %d\n", s.Blocked)
	if s.Failed > 0 {
		fmt.Fprintf(w, "⚠️  Failed:   %d\n", s.Failed)
	}

	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if s.Reasons[reasons[i]] != s.Reasons[reasons[j]] {
			return s.Reasons[reasons[i]] > s.Reasons[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	for _, r := range reasons {
		fmt.Fprintf(w, "   %-30s %d\n", r, s.Reasons[r])
	}

	if s.Ready+s.Blocked > 0 {
		fmt.Fprintf(w, "\n%-12s %8s %8s %8s\n", "METRIC", "MEAN", "STDDEV", "MEDIAN")
		for _, m := range []struct {
			name string
			v    metricSummary
		}{{"luma", s.MeanLuma}, {"sharpness", s.Sharpness}, {"cast", s.Cast}} {
			fmt.Fprintf(w, "%-12s %8.2f %8.2f %8.2f\n", m.name, m.v.Mean, m.v.StdDev, m.v.Median)
		}
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// validateAssessFlags ensures all CLI arguments are valid before starting workers.
func validateAssessFlags(opts *Options) error {
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.ProbeWidth < 0 {
		return fmt.Errorf("probe-width must be >= 0, got %d", opts.ProbeWidth)
	}
	return nil
}
