// Package handoff contains the consumers a capture session delivers its final
// image to.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/andresmejia3/shadecheck/internal/capture"
	"github.com/andresmejia3/shadecheck/internal/types"
)

var ErrAlreadyDelivered = errors.New("handoff: descriptor already delivered")

// Channel delivers the descriptor as a single event on C.
type Channel struct {
	C chan types.ImageDescriptor
}

// NewChannel returns a Channel buffered for the one event a session produces,
// so the session never blocks on a slow consumer.
func NewChannel() *Channel {
	return &Channel{C: make(chan types.ImageDescriptor, 1)}
}

func (c *Channel) Handoff(ctx context.Context, desc types.ImageDescriptor) error {
	select {
	case c.C <- desc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Multi delivers to each sink in order and stops at the first error.
type Multi []capture.Sink

func (m Multi) Handoff(ctx context.Context, desc types.ImageDescriptor) error {
	for i, s := range m {
		if err := s.Handoff(ctx, desc); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Once lets exactly one successful delivery through to the wrapped sink.
// A failed delivery does not count.
type Once struct {
	sink capture.Sink

	mu        sync.Mutex
	delivered bool
}

func NewOnce(sink capture.Sink) *Once {
	return &Once{sink: sink}
}

func (o *Once) Handoff(ctx context.Context, desc types.ImageDescriptor) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.delivered {
		return ErrAlreadyDelivered
	}
	if err := o.sink.Handoff(ctx, desc); err != nil {
		return err
	}
	o.delivered = true
	return nil
}

func (o *Once) Delivered() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delivered
}

// imageBytes prefers the bytes the session attached, falling back to the file.
func imageBytes(ctx context.Context, desc types.ImageDescriptor) ([]byte, error) {
	if sub, ok := capture.SubmissionFromContext(ctx); ok && len(sub.Data) > 0 {
		return sub.Data, nil
	}
	data, err := os.ReadFile(desc.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to read captured image: %w", err)
	}
	return data, nil
}
