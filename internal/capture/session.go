// Package capture drives a live capture session: background quality probes,
// the shutter state machine, and the single hand-off of the final image.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresmejia3/shadecheck/internal/camera"
	"github.com/andresmejia3/shadecheck/internal/logger"
	"github.com/andresmejia3/shadecheck/internal/quality"
	"github.com/andresmejia3/shadecheck/internal/types"
)

// SourceTag marks descriptors produced by a live session.
const SourceTag = "camera"

var (
	ErrNotReady          = errors.New("capture: quality check has not passed")
	ErrCaptureInProgress = errors.New("capture: already capturing")
	ErrAlreadySubmitted  = errors.New("capture: image already submitted")
	ErrClosed            = errors.New("capture: session closed")

	errRequestInFlight = errors.New("camera busy: another request is in flight")
)

type State int

const (
	Idle State = iota
	Probing
	Capturing
	Submitted
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case Capturing:
		return "capturing"
	case Submitted:
		return "submitted"
	default:
		return "idle"
	}
}

// Timing holds every delay and retry bound of a session.
type Timing struct {
	ProbeReady     time.Duration // next probe after an ok reading
	ProbeAdjust    time.Duration // next probe while the user is still adjusting
	InFlightWait   time.Duration
	InFlightPoll   time.Duration
	Settle         time.Duration
	RetryBackoff   time.Duration
	Attempts       int
	ProbeQuality   float64
	CaptureQuality float64
}

func DefaultTiming() Timing {
	return Timing{
		ProbeReady:     1700 * time.Millisecond,
		ProbeAdjust:    950 * time.Millisecond,
		InFlightWait:   1600 * time.Millisecond,
		InFlightPoll:   50 * time.Millisecond,
		Settle:         150 * time.Millisecond,
		RetryBackoff:   250 * time.Millisecond,
		Attempts:       3,
		ProbeQuality:   0.35,
		CaptureQuality: 1,
	}
}

type Options struct {
	Source types.FrameSource
	Sink   Sink

	// Optional.
	Decoder  func([]byte) (*types.PixelBuffer, error)
	Assessor func(*types.PixelBuffer) types.QualityState
	Clock    Clock
	Timing   *Timing
	Logger   *zap.Logger
}

// Session owns all mutable capture state for one mounted capture surface.
type Session struct {
	id       string
	source   types.FrameSource
	sink     Sink
	decode   func([]byte) (*types.PixelBuffer, error)
	assess   func(*types.PixelBuffer) types.QualityState
	clock    Clock
	timing   Timing
	log      *zap.Logger
	sched    *Scheduler
	closeCtx context.Context
	closeFn  context.CancelFunc

	mu        sync.Mutex
	state     State
	quality   types.QualityState
	approved  string // Location of the frame behind quality, if the source sets one
	inFlight  bool
	mounted   bool
	submitted bool
}

func NewSession(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, errors.New("capture: a frame source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("capture: a sink is required")
	}

	s := &Session{
		id:      uuid.NewString(),
		source:  opts.Source,
		sink:    opts.Sink,
		decode:  opts.Decoder,
		assess:  opts.Assessor,
		clock:   opts.Clock,
		timing:  DefaultTiming(),
		log:     opts.Logger,
		quality: types.QualityState{Message: "Adjust: " + quality.ReasonFraming},
	}
	if opts.Timing != nil {
		s.timing = *opts.Timing
	}
	if s.timing.Attempts < 1 {
		s.timing.Attempts = 1
	}
	if s.timing.InFlightPoll <= 0 {
		s.timing.InFlightPoll = DefaultTiming().InFlightPoll
	}
	if s.decode == nil {
		s.decode = camera.Decode
	}
	if s.assess == nil {
		s.assess = quality.Assess
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.log == nil {
		s.log = logger.Logger
	}
	s.log = s.log.With(zap.String("session", s.id))
	s.sched = NewScheduler(s.probe, s.clock)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Start mounts the session and begins probing immediately.
// The session stays alive until Close or ctx is done.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.mounted || s.closeCtx != nil {
		s.mu.Unlock()
		return
	}
	s.closeCtx, s.closeFn = context.WithCancel(ctx)
	s.mounted = true
	s.state = Probing
	s.mu.Unlock()

	s.log.Info("capture session started")
	s.sched.Start(s.closeCtx, 0)
}

// Close unmounts the session. It does not wait for a running probe; results
// that arrive afterwards are discarded. Use Wait to block until the probe loop exits.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	if s.state != Submitted {
		s.state = Idle
	}
	if s.closeFn != nil {
		s.closeFn()
	}
	s.mu.Unlock()

	s.sched.Stop()
	s.log.Info("capture session closed")
}

func (s *Session) Wait() { s.sched.Wait() }

func (s *Session) Quality() types.QualityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Probe runs one probe now, outside the schedule, and returns the retained state.
func (s *Session) Probe(ctx context.Context) types.QualityState {
	s.probe(ctx)
	return s.Quality()
}

func (s *Session) nextDelayLocked() time.Duration {
	if s.quality.OK {
		return s.timing.ProbeReady
	}
	return s.timing.ProbeAdjust
}

// probe is the scheduler task. Failures are logged and swallowed; the previous
// reading stays in place.
func (s *Session) probe(ctx context.Context) time.Duration {
	ready := s.source.Ready()

	s.mu.Lock()
	skip := ""
	switch {
	case !s.mounted:
		skip = "unmounted"
	case s.submitted || s.state == Capturing:
		skip = s.state.String()
	case s.inFlight:
		skip = "request in flight"
	case !ready:
		skip = "source not ready"
	}
	if skip != "" {
		delay := s.nextDelayLocked()
		s.mu.Unlock()
		s.log.Debug("probe skipped", zap.String("reason", skip))
		return delay
	}
	s.inFlight = true
	s.mu.Unlock()

	frame, err := s.source.RequestFrame(ctx, types.FrameOptions{Quality: s.timing.ProbeQuality, LowLatency: true})
	var state types.QualityState
	if err == nil {
		var buf *types.PixelBuffer
		if buf, err = s.pixels(frame); err == nil {
			state = s.assess(buf)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.log.Debug("probe failed", zap.Error(err))
		return s.nextDelayLocked()
	}
	if !s.mounted || s.submitted || s.state == Capturing || ctx.Err() != nil {
		return s.nextDelayLocked()
	}
	if state.OK != s.quality.OK {
		s.log.Debug("readiness changed", zap.Bool("ok", state.OK), zap.String("message", state.Message))
	}
	s.quality = state
	s.approved = frame.Location
	return s.nextDelayLocked()
}

func (s *Session) pixels(frame *types.Frame) (*types.PixelBuffer, error) {
	if frame == nil {
		return nil, errors.New("source returned no frame")
	}
	if frame.Pixels != nil {
		return frame.Pixels, nil
	}
	return s.decode(frame.Encoded)
}

// Capture takes the final picture and hands it off. It is only allowed while the
// last reading is ok, and succeeds at most once per session.
func (s *Session) Capture(ctx context.Context) (types.ImageDescriptor, error) {
	s.mu.Lock()
	switch {
	case s.submitted:
		s.mu.Unlock()
		return types.ImageDescriptor{}, ErrAlreadySubmitted
	case s.state == Capturing:
		s.mu.Unlock()
		return types.ImageDescriptor{}, ErrCaptureInProgress
	case !s.mounted:
		s.mu.Unlock()
		return types.ImageDescriptor{}, ErrClosed
	case !s.quality.OK:
		s.mu.Unlock()
		return types.ImageDescriptor{}, ErrNotReady
	}
	s.state = Capturing
	readiness := s.quality
	approved := s.approved
	s.mu.Unlock()

	// Tear the capture down with the session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.closeCtx, cancel)
	defer stop()

	s.sched.Stop()
	s.waitIdle(ctx)

	if err := sleep(ctx, s.clock, s.timing.Settle); err != nil {
		return types.ImageDescriptor{}, s.fail(err)
	}

	frame, err := s.captureWithRetry(ctx, approved)
	if err != nil {
		return types.ImageDescriptor{}, s.fail(err)
	}

	desc, err := describe(frame)
	if err != nil {
		return types.ImageDescriptor{}, s.fail(err)
	}

	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return types.ImageDescriptor{}, ErrClosed
	}
	s.submitted = true
	s.state = Submitted
	s.mu.Unlock()

	sub := Submission{SessionID: s.id, Quality: readiness, Data: frame.Encoded}
	if err := s.sink.Handoff(WithSubmission(ctx, sub), desc); err != nil {
		s.mu.Lock()
		s.submitted = false
		s.state = Capturing
		s.mu.Unlock()
		return types.ImageDescriptor{}, s.fail(fmt.Errorf("hand-off failed: %w", err))
	}

	s.log.Info("capture submitted",
		zap.String("location", desc.Location),
		zap.Int("width", desc.Width),
		zap.Int("height", desc.Height))
	return desc, nil
}

// waitIdle gives an in-flight probe a bounded amount of time to finish.
func (s *Session) waitIdle(ctx context.Context) {
	for waited := time.Duration(0); waited < s.timing.InFlightWait; waited += s.timing.InFlightPoll {
		s.mu.Lock()
		busy := s.inFlight
		s.mu.Unlock()
		if !busy {
			return
		}
		if sleep(ctx, s.clock, s.timing.InFlightPoll) != nil {
			return
		}
	}
	s.log.Warn("probe still in flight after wait", zap.Duration("waited", s.timing.InFlightWait))
}

func (s *Session) captureWithRetry(ctx context.Context, approved string) (*types.Frame, error) {
	var lastErr error
	for attempt := 1; attempt <= s.timing.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.clock, s.timing.RetryBackoff); err != nil {
				return nil, err
			}
		}

		frame, err := s.request(ctx, approved)
		if err == nil {
			return frame, nil
		}
		lastErr = err
		if ctx.Err() != nil || !camera.IsTransient(err) {
			return nil, err
		}
		s.log.Warn("capture attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts", s.timing.Attempts),
			zap.Error(err))
	}
	return nil, fmt.Errorf("capture failed after %d attempts: %w", s.timing.Attempts, lastErr)
}

// request issues the full-quality frame request under the in-flight marker.
func (s *Session) request(ctx context.Context, approved string) (*types.Frame, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, camera.NewTransient("capture", errRequestInFlight)
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	frame, err := s.source.RequestFrame(ctx, types.FrameOptions{
		Quality:    s.timing.CaptureQuality,
		LowLatency: false,
		Approved:   approved,
	})
	if err == nil && frame == nil {
		err = camera.NewFatal("capture", errors.New("source returned no frame"))
	}
	return frame, err
}

// fail returns the session to probing and restarts the scheduler if it is still mounted.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	restart := s.mounted && !s.submitted
	if restart {
		s.state = Probing
	} else if !s.submitted {
		s.state = Idle
	}
	closeCtx := s.closeCtx
	s.mu.Unlock()

	s.log.Error("capture failed", zap.Error(err), zap.Bool("transient", camera.IsTransient(err)))
	if restart {
		s.sched.Start(closeCtx, s.timing.ProbeAdjust)
	}
	return err
}

func describe(frame *types.Frame) (types.ImageDescriptor, error) {
	if frame.Location == "" {
		return types.ImageDescriptor{}, camera.NewFatal("describe capture", errors.New("captured frame has no location"))
	}

	desc := types.ImageDescriptor{
		Location:  frame.Location,
		FileName:  filepath.Base(frame.Location),
		MimeType:  frame.MimeType,
		SourceTag: SourceTag,
		Width:     frame.Width,
		Height:    frame.Height,
	}
	if desc.MimeType == "" && len(frame.Encoded) > 0 {
		desc.MimeType = mimetype.Detect(frame.Encoded).String()
	}
	if desc.Width == 0 || desc.Height == 0 {
		switch {
		case frame.Pixels != nil:
			desc.Width, desc.Height = frame.Pixels.Width, frame.Pixels.Height
		case len(frame.Encoded) > 0:
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Encoded)); err == nil {
				desc.Width, desc.Height = cfg.Width, cfg.Height
			}
		}
	}
	return desc, nil
}
