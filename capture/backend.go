// Package capture implements the play-and-record core of the preview
// pipeline. Conversion and trimming both work by binding the source to a
// decoding element, capturing its live output into a stream and recording
// that stream into a new webm container — a real-time, lossy operation by
// construction, since no offline codec facility is assumed to exist.
//
// The decoding and recording machinery is injected through the Backend
// interface so the engine can run against the ffmpeg-backed production
// backend as well as a scripted one in tests.
package capture

import (
	"context"
	"time"

	"clipnorm/media"
)

// Backend abstracts the runtime's media machinery: element creation,
// playback-support queries and recorder construction.
type Backend interface {
	// CanPlayType reports whether the exact encoded type string can be
	// decoded without transcoding.
	CanPlayType(mimeType string) media.Capability

	// SupportsRecording reports whether the backend can record a live
	// stream into the given container/codec type.
	SupportsRecording(mimeType string) bool

	// NewElement binds an asset to a fresh decoding element via a
	// temporary resource handle. The caller owns the element and must
	// call Release exactly once on every path.
	NewElement(ctx context.Context, asset media.Asset) (Element, error)

	// NewRecorder constructs a recorder bound to a live stream.
	NewRecorder(stream Stream, opts RecorderOptions) (Recorder, error)
}

// Element is one decoding element holding a temporary resource handle.
type Element interface {
	// Mute silences rendered output so processing has no audible or
	// visible side effects.
	Mute()

	// AwaitMetadata suspends until the element has loaded enough of the
	// source to know its intrinsic duration, or until the decoder
	// reports a load error.
	AwaitMetadata(ctx context.Context) error

	// Duration returns the intrinsic duration. Valid only after
	// AwaitMetadata succeeded.
	Duration() time.Duration

	// CaptureStream derives a live stream from the element's rendered
	// output. Fails if the element does not support live capture.
	CaptureStream() (Stream, error)

	// Play starts real-time playback from position zero.
	Play(ctx context.Context) error

	// Pause halts playback. Safe to call after playback already ended.
	Pause()

	// Ended is closed when playback reaches the natural end of the
	// source.
	Ended() <-chan struct{}

	// Release revokes the temporary resource handle. Must be called
	// exactly once; the engine guarantees this on every exit path.
	Release()
}

// Stream is the live media stream captured from an element.
type Stream interface {
	// StopTracks stops every track of the stream. Idempotent.
	StopTracks()
}

// Recorder encodes a live stream into an output container, emitting data
// chunks as they become available.
type Recorder interface {
	// Start begins recording.
	Start() error

	// Stop requests finalization. The recorder flushes remaining chunks,
	// closes Chunks and then signals Done. Idempotent.
	Stop()

	// Chunks delivers encoded data in arrival order. Closed once the
	// recorder has gone inactive.
	Chunks() <-chan []byte

	// Done is closed when the recorder has reached its inactive state.
	Done() <-chan struct{}

	// Err reports a recorder failure, valid once Done is closed.
	Err() error

	// MimeType is the actual output type the recorder settled on.
	MimeType() string
}

// RecorderOptions carry the negotiated output type and the policy
// bitrates. Bitrates are fixed targets, never derived from the source.
type RecorderOptions struct {
	MimeType           string
	AudioBitsPerSecond int
	VideoBitsPerSecond int
}

// Codec preference tables, best first. The engine picks the first entry
// the backend reports as recordable.
var (
	videoRecordingTypes = []string{
		"video/webm;codecs=vp8,opus",
		"video/webm",
	}
	audioRecordingTypes = []string{
		"audio/webm;codecs=opus",
		"audio/webm",
	}
)

// pickRecordingType walks the preference table for the asset kind and
// returns the first supported output type.
func pickRecordingType(b Backend, kind media.Kind) (string, bool) {
	prefs := audioRecordingTypes
	if kind == media.KindVideo {
		prefs = videoRecordingTypes
	}
	for _, mt := range prefs {
		if b.SupportsRecording(mt) {
			return mt, true
		}
	}
	return "", false
}
