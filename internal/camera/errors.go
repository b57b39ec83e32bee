package camera

import (
	"errors"
	"fmt"
	"strings"
)

// Kind says whether a failed frame request is worth retrying.
type Kind int

const (
	Fatal Kind = iota
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Error is returned by frame sources so callers can branch on Kind instead of message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewTransient(op string, err error) error {
	return &Error{Kind: Transient, Op: op, Err: err}
}

func NewFatal(op string, err error) error {
	return &Error{Kind: Fatal, Op: op, Err: err}
}

// IsTransient reports whether err carries a transient camera error.
// Anything unclassified is fatal.
func IsTransient(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == Transient
	}
	return false
}

// Device conditions that clear up on their own.
var transientMarkers = []string{
	"busy",
	"in progress",
	"not ready",
	"temporarily unavailable",
	"try again",
}

// classify turns an ffmpeg failure into a typed error using its stderr.
func classify(op string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail != "" {
		err = fmt.Errorf("%w: %s", err, detail)
	}

	lower := strings.ToLower(detail)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return NewTransient(op, err)
		}
	}
	return NewFatal(op, err)
}
