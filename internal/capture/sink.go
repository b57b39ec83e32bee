package capture

import (
	"context"

	"github.com/andresmejia3/shadecheck/internal/types"
)

// Sink receives the descriptor of the final capture. A session calls it at most
// once successfully.
type Sink interface {
	Handoff(ctx context.Context, desc types.ImageDescriptor) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, desc types.ImageDescriptor) error

func (f SinkFunc) Handoff(ctx context.Context, desc types.ImageDescriptor) error { return f(ctx, desc) }

// Submission is the session-side detail of a hand-off that does not belong in
// the descriptor itself. Sinks that persist captures read it from the context.
type Submission struct {
	SessionID string
	Quality   types.QualityState
	Data      []byte // encoded image, nil if the source only wrote a file
}

type submissionKey struct{}

// WithSubmission attaches sub to ctx for the sink.
func WithSubmission(ctx context.Context, sub Submission) context.Context {
	return context.WithValue(ctx, submissionKey{}, sub)
}

// SubmissionFromContext returns the submission attached by the session, if any.
func SubmissionFromContext(ctx context.Context) (Submission, bool) {
	sub, ok := ctx.Value(submissionKey{}).(Submission)
	return sub, ok
}
