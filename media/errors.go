package media

import (
	"errors"
	"fmt"
)

// ErrorKind labels the failure classes a pipeline invocation can surface.
// Every failure is local to one invocation; none are retried automatically
// and none affect other in-flight work.
type ErrorKind string

const (
	// ErrInvalidKind: input is neither audio nor video. No resources are
	// ever allocated on this path.
	ErrInvalidKind ErrorKind = "invalid_asset_kind"
	// ErrDecode: the decoder backend could not load or parse the source.
	ErrDecode ErrorKind = "decode_error"
	// ErrCaptureUnsupported: the backend cannot produce a live stream
	// from a decoding element. A capability limitation, not a data error.
	ErrCaptureUnsupported ErrorKind = "capture_unsupported"
	// ErrTranscode: recorder or playback failure mid-capture. Resources
	// are released before this is surfaced; buffered chunks are discarded.
	ErrTranscode ErrorKind = "transcode_error"
	// ErrDurationExceeded: strict validation rejected an over-long asset
	// instead of trimming it.
	ErrDurationExceeded ErrorKind = "duration_exceeded"
)

// Error carries a failure kind plus a human-readable cause.
type Error struct {
	Kind  ErrorKind
	Cause error
	msg   string
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.Cause)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a pipeline error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapError builds a pipeline error around an underlying cause.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: cause, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, or "" for non-pipeline errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if !errors.As(err, &pe) {
		return ""
	}
	return pe.Kind
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
