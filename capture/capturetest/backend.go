// Package capturetest provides a scripted, instrumented capture backend.
// It emits load/data/stop events deterministically and without real-time
// delay, and counts every acquire and release so tests can verify the
// exactly-once teardown invariant on each failure path.
package capturetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"clipnorm/capture"
	"clipnorm/media"
)

// Backend is a scripted capture.Backend. The zero value behaves like a
// runtime that can record every webm variant and play nothing directly.
// Failure injection fields make the corresponding step fail.
type Backend struct {
	// Dur is the intrinsic duration every element reports.
	Dur time.Duration

	// Chunks are the encoded payloads the recorder emits, in order.
	Chunks [][]byte

	// Capabilities maps exact MIME strings to CanPlayType answers.
	// Unlisted types report CannotPlay.
	Capabilities map[string]media.Capability

	// RecordingTypes restricts SupportsRecording when non-nil.
	RecordingTypes []string

	// Endless makes playback never reach its natural end, so only a
	// deadline or cancellation can stop the session.
	Endless bool

	NewElementErr    error
	MetadataErr      error
	CaptureErr       error
	PlayErr          error
	NewRecorderErr   error
	RecorderStartErr error
	RecorderErr      error

	mu               sync.Mutex
	elementsCreated  int
	elementsReleased int
	doubleReleases   int
	tracksStopped    int
	recordersCreated int
}

// ElementsCreated returns how many temporary element handles were bound.
func (b *Backend) ElementsCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elementsCreated
}

// ElementsReleased returns how many element handles were released.
func (b *Backend) ElementsReleased() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elementsReleased
}

// DoubleReleases counts Release calls beyond the first on any element.
func (b *Backend) DoubleReleases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doubleReleases
}

// TracksStopped returns how many streams had their tracks stopped.
func (b *Backend) TracksStopped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracksStopped
}

// RecordersCreated returns how many recorders were constructed.
func (b *Backend) RecordersCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordersCreated
}

// Balanced reports whether every acquired handle was released exactly once.
func (b *Backend) Balanced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elementsCreated == b.elementsReleased && b.doubleReleases == 0
}

func (b *Backend) CanPlayType(mimeType string) media.Capability {
	if c, ok := b.Capabilities[mimeType]; ok {
		return c
	}
	return media.CannotPlay
}

func (b *Backend) SupportsRecording(mimeType string) bool {
	if b.RecordingTypes == nil {
		return true
	}
	for _, mt := range b.RecordingTypes {
		if mt == mimeType {
			return true
		}
	}
	return false
}

func (b *Backend) NewElement(ctx context.Context, asset media.Asset) (capture.Element, error) {
	if b.NewElementErr != nil {
		return nil, b.NewElementErr
	}
	b.mu.Lock()
	b.elementsCreated++
	b.mu.Unlock()
	return &element{backend: b, ended: make(chan struct{})}, nil
}

func (b *Backend) NewRecorder(stream capture.Stream, opts capture.RecorderOptions) (capture.Recorder, error) {
	if b.NewRecorderErr != nil {
		return nil, b.NewRecorderErr
	}
	b.mu.Lock()
	b.recordersCreated++
	b.mu.Unlock()
	return &recorder{backend: b, opts: opts, done: make(chan struct{})}, nil
}

type element struct {
	backend *Backend
	ended   chan struct{}

	mu       sync.Mutex
	released bool
	endOnce  sync.Once
}

func (e *element) Mute() {}

func (e *element) AwaitMetadata(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.backend.MetadataErr
}

func (e *element) Duration() time.Duration { return e.backend.Dur }

func (e *element) CaptureStream() (capture.Stream, error) {
	if e.backend.CaptureErr != nil {
		return nil, e.backend.CaptureErr
	}
	return &stream{backend: e.backend}, nil
}

func (e *element) Play(ctx context.Context) error {
	if e.backend.PlayErr != nil {
		return e.backend.PlayErr
	}
	if !e.backend.Endless {
		e.endOnce.Do(func() { close(e.ended) })
	}
	return nil
}

func (e *element) Pause() {}

func (e *element) Ended() <-chan struct{} { return e.ended }

func (e *element) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backend.mu.Lock()
	defer e.backend.mu.Unlock()
	if e.released {
		e.backend.doubleReleases++
		return
	}
	e.released = true
	e.backend.elementsReleased++
}

type stream struct {
	backend  *Backend
	stopOnce sync.Once
}

func (s *stream) StopTracks() {
	s.stopOnce.Do(func() {
		s.backend.mu.Lock()
		s.backend.tracksStopped++
		s.backend.mu.Unlock()
	})
}

type recorder struct {
	backend *Backend
	opts    capture.RecorderOptions

	startOnce sync.Once
	stopOnce  sync.Once
	chunks    chan []byte
	done      chan struct{}
	err       error
}

func (r *recorder) Start() error {
	if r.backend.RecorderStartErr != nil {
		return r.backend.RecorderStartErr
	}
	r.startOnce.Do(func() {
		r.chunks = make(chan []byte, len(r.backend.Chunks))
		for _, c := range r.backend.Chunks {
			r.chunks <- c
		}
	})
	return nil
}

func (r *recorder) Stop() {
	r.stopOnce.Do(func() {
		r.err = r.backend.RecorderErr
		if r.chunks == nil {
			r.chunks = make(chan []byte)
		}
		close(r.chunks)
		close(r.done)
	})
}

func (r *recorder) Chunks() <-chan []byte {
	if r.chunks == nil {
		return nil
	}
	return r.chunks
}

func (r *recorder) Done() <-chan struct{} { return r.done }

func (r *recorder) Err() error { return r.err }

func (r *recorder) MimeType() string { return r.opts.MimeType }

// ErrScripted is a convenience error for failure-injection tests.
var ErrScripted = errors.New("scripted failure")
