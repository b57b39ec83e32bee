package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/shadecheck/internal/camera"
	"github.com/andresmejia3/shadecheck/internal/capture"
	"github.com/andresmejia3/shadecheck/internal/config"
	"github.com/andresmejia3/shadecheck/internal/handoff"
	"github.com/andresmejia3/shadecheck/internal/logger"
	"github.com/andresmejia3/shadecheck/internal/types"
	"github.com/andresmejia3/shadecheck/internal/utils"
)

var (
	captureOpts   Options
	captureReplay string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a live capture session and hand off one approved selfie",
	Long: `Probes the camera in the background and shows a readiness line on stderr.
Press Enter to take the picture (or use --auto). The shutter only fires while the
last reading is ready. On success the image descriptor is printed to stdout as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCapture(cmd.Context(), captureOpts, os.Stdin, os.Stdout)
	},
}

func init() {
	captureCmd.Flags().BoolVarP(&captureOpts.Auto, "auto", "a", false, "Take the picture as soon as the reading is ready")
	captureCmd.Flags().StringVarP(&captureOpts.Timeout, "timeout", "t", "2m", "Give up if no picture was taken within this duration")
	captureCmd.Flags().StringVar(&captureReplay, "replay", "", "Replay images from this directory instead of a live camera")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	timeout, err := time.ParseDuration(opts.Timeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("invalid timeout %q (use '90s', '2m')", opts.Timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := *Cfg
	if captureReplay != "" {
		cfg.Camera.Source = "dir"
		cfg.Camera.ReplayDir = captureReplay
	}

	timing, err := timingFromConfig(&cfg)
	if err != nil {
		return err
	}
	src, err := newSource(&cfg)
	if err != nil {
		return utils.ReportError("Failed to open camera", err, nil)
	}
	if !src.Ready() {
		fmt.Fprintf(os.Stderr, "⏳ Camera is not ready yet, waiting...\n")
	}

	events := handoff.NewChannel()
	sinks, err := buildSinks(ctx, &cfg, events)
	if err != nil {
		return utils.ReportError("Failed to set up hand-off", err, nil)
	}

	sess, err := capture.NewSession(capture.Options{
		Source: src,
		Sink:   handoff.NewOnce(sinks),
		Timing: &timing,
		Logger: logger.Logger,
	})
	if err != nil {
		return err
	}
	sess.Start(ctx)
	defer func() {
		sess.Close()
		sess.Wait()
	}()

	shutter := make(chan struct{}, 1)
	if !opts.Auto {
		fmt.Fprintf(os.Stderr, "📸 Press Enter to take the picture.\n")
		go readShutter(ctx, in, shutter)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no picture taken within %s", timeout)
			}
			return ctx.Err()

		case desc := <-events.C:
			fmt.Fprintf(os.Stderr, "\n✅ Captured %s\n", desc.FileName)
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(desc)

		case <-ticker.C:
			last = renderReadiness(sess.Quality(), last)
			if opts.Auto && sess.Quality().OK {
				if err := shoot(ctx, sess); err != nil {
					return err
				}
			}

		case <-shutter:
			if err := shoot(ctx, sess); err != nil {
				return err
			}
		}
	}
}

// shoot fires the shutter. Conditions the user can fix are reported and the
// session keeps going; anything else ends the command.
func shoot(ctx context.Context, sess *capture.Session) error {
	_, err := sess.Capture(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrNotReady):
		fmt.Fprintf(os.Stderr, "\n⏳ Not ready: %s\n", sess.Quality().Message)
		return nil
	case errors.Is(err, capture.ErrCaptureInProgress), errors.Is(err, capture.ErrAlreadySubmitted):
		return nil
	case camera.IsTransient(err):
		fmt.Fprintf(os.Stderr, "\n⚠️  Camera busy, try again: %v\n", err)
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		return utils.ReportError("Capture failed", err, nil)
	}
}

func renderReadiness(q types.QualityState, last string) string {
	icon := "🟡"
	if q.OK {
		icon = "🟢"
	}
	line := icon + " " + q.Message
	if line != last {
		fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
	}
	return line
}

func readShutter(ctx context.Context, in io.Reader, shutter chan<- struct{}) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case shutter <- struct{}{}:
		case <-ctx.Done():
			return
		default:
		}
	}
}

func timingFromConfig(cfg *config.Config) (capture.Timing, error) {
	d, err := cfg.Durations()
	if err != nil {
		return capture.Timing{}, err
	}
	return capture.Timing{
		ProbeReady:     d.ProbeReady,
		ProbeAdjust:    d.ProbeAdjust,
		InFlightWait:   d.InFlightWait,
		InFlightPoll:   d.InFlightPoll,
		Settle:         d.Settle,
		RetryBackoff:   d.RetryBackoff,
		Attempts:       cfg.Timing.Attempts,
		ProbeQuality:   cfg.Timing.ProbeQuality,
		CaptureQuality: cfg.Timing.CaptureQuality,
	}, nil
}

func newSource(cfg *config.Config) (types.FrameSource, error) {
	switch cfg.Camera.Source {
	case "dir":
		return camera.NewDirSource(cfg.Camera.ReplayDir, cfg.Camera.ProbeWidth)
	case "ffmpeg":
		return camera.NewFFmpeg(camera.FFmpegOptions{
			Binary:      cfg.Camera.FFmpeg,
			Device:      cfg.Camera.Device,
			InputFormat: cfg.Camera.InputFormat,
			ProbeWidth:  cfg.Camera.ProbeWidth,
			CaptureDir:  cfg.Camera.CaptureDir,
		}), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Camera.Source)
	}
}

// buildSinks chains the configured consumers. The event channel goes last so the
// descriptor is only printed once every other sink has accepted it.
func buildSinks(ctx context.Context, cfg *config.Config, events *handoff.Channel) (handoff.Multi, error) {
	var sinks handoff.Multi
	if cfg.Sink.Store {
		db, err := openDB(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, handoff.NewStoreSink(db))
	}
	if cfg.Sink.AzureContainer != "" {
		az, err := handoff.NewAzureSink(os.Getenv("AZURE_STORAGE_ACCOUNT"), os.Getenv("AZURE_STORAGE_KEY"), cfg.Sink.AzureContainer)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, az)
	}
	return append(sinks, events), nil
}
