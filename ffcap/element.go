package ffcap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clipnorm/capture"
	"clipnorm/media"
)

// NewElement stages the asset payload into a per-session temp file, the
// backend's equivalent of a temporary resource handle. Release removes
// the file exactly once.
func (b *Backend) NewElement(ctx context.Context, asset media.Asset) (capture.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(b.tempDir, "input_*"+stagingExt(asset))
	if err != nil {
		return nil, fmt.Errorf("could not stage input: %w", err)
	}
	if _, err := tmp.Write(asset.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("could not write staged input: %w", err)
	}
	// Flush before ffprobe/ffmpeg read it.
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	return &element{
		b:     b,
		path:  tmp.Name(),
		kind:  media.Classify(asset),
		ended: make(chan struct{}),
	}, nil
}

// stagingExt keeps the original extension on the staged file so ffprobe
// can use it as a container hint, stripping anything path-like.
func stagingExt(asset media.Asset) string {
	ext := asset.Ext()
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

type element struct {
	b     *Backend
	path  string
	kind  media.Kind
	muted bool
	dur   time.Duration

	ended       chan struct{}
	endOnce     sync.Once
	releaseOnce sync.Once

	mu  sync.Mutex
	rec *recorder
}

// Mute is a no-op here: process-based playback renders nothing audible.
func (e *element) Mute() { e.muted = true }

// AwaitMetadata reads the intrinsic duration with one ffprobe call,
// loading only container metadata, never the full stream.
func (e *element) AwaitMetadata(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.b.cfg.FFProbeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		e.path)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return fmt.Errorf("ffprobe: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return fmt.Errorf("ffprobe: %w", err)
	}

	line := strings.TrimSpace(string(out))
	if line == "" || line == "N/A" {
		return fmt.Errorf("source reports no duration")
	}
	secs, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return fmt.Errorf("unparseable duration %q", line)
	}
	e.dur = time.Duration(secs * float64(time.Second))
	return nil
}

func (e *element) Duration() time.Duration { return e.dur }

// CaptureStream derives the element's live output stream. With ffmpeg
// available, anything that probed successfully can be captured.
func (e *element) CaptureStream() (capture.Stream, error) {
	return &liveStream{el: e}, nil
}

// Play launches the capture process. Playback and recording are a single
// ffmpeg invocation here, so this requires an armed recorder; the -re
// input flag paces decoding at the source's native rate, which is what
// makes deadline-based trimming meaningful.
func (e *element) Play(ctx context.Context) error {
	e.mu.Lock()
	r := e.rec
	e.mu.Unlock()
	if r == nil || !r.armed {
		return errors.New("no armed recorder bound to element")
	}
	return r.launch(ctx, e)
}

// Pause is a no-op: stopping the recorder halts the shared process.
func (e *element) Pause() {}

func (e *element) Ended() <-chan struct{} { return e.ended }

func (e *element) closeEnded() {
	e.endOnce.Do(func() { close(e.ended) })
}

// Release revokes the staged input and tears down any live process.
func (e *element) Release() {
	e.releaseOnce.Do(func() {
		e.mu.Lock()
		r := e.rec
		e.mu.Unlock()
		if r != nil {
			r.kill()
		}
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			e.b.log.Warn().Err(err).Str("path", e.path).Msg("could not remove staged input")
		}
	})
}

type liveStream struct {
	el       *element
	stopOnce sync.Once
}

// StopTracks terminates the live process if it is still emitting.
func (s *liveStream) StopTracks() {
	s.stopOnce.Do(func() {
		s.el.mu.Lock()
		r := s.el.rec
		s.el.mu.Unlock()
		if r != nil {
			r.kill()
		}
	})
}

// NewRecorder binds a recorder to a stream from this backend. Resource
// admission happens here, before any capture process exists.
func (b *Backend) NewRecorder(stream capture.Stream, opts capture.RecorderOptions) (capture.Recorder, error) {
	ls, ok := stream.(*liveStream)
	if !ok {
		return nil, errors.New("stream does not belong to this backend")
	}
	if err := b.checkResources(); err != nil {
		return nil, fmt.Errorf("insufficient system resources: %w", err)
	}

	r := &recorder{
		b:    b,
		opts: opts,
		done: make(chan struct{}),
	}
	ls.el.mu.Lock()
	ls.el.rec = r
	ls.el.mu.Unlock()
	return r, nil
}

type recorder struct {
	b    *Backend
	opts capture.RecorderOptions

	armed  bool
	chunks chan []byte
	done   chan struct{}

	stopped  atomic.Bool
	stopOnce sync.Once
	err      error

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr bytes.Buffer
}

func (r *recorder) Start() error {
	r.chunks = make(chan []byte, 16)
	r.armed = true
	return nil
}

// launch starts the ffmpeg process and the goroutine pumping its stdout
// into the chunk channel.
func (r *recorder) launch(ctx context.Context, el *element) error {
	pctx, cancel := context.WithCancel(ctx)
	args := buildCaptureArgs(el.path, el.kind, r.opts, r.b.extra)
	cmd := exec.CommandContext(pctx, r.b.cfg.FFBin, args...)
	cmd.Stderr = &r.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting capture process: %w", err)
	}
	r.cmd = cmd
	r.cancel = cancel

	r.b.log.Debug().
		Str("input", el.path).
		Str("output_type", r.opts.MimeType).
		Msg("capture process started")

	go r.pump(pctx, stdout, el)
	return nil
}

// pump forwards encoded chunks in arrival order, then settles the
// recorder: chunk channel closed first, then the done signal.
func (r *recorder) pump(ctx context.Context, stdout io.Reader, el *element) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case r.chunks <- chunk:
			case <-ctx.Done():
			}
		}
		if err != nil {
			break
		}
	}
	close(r.chunks)

	werr := r.cmd.Wait()
	if werr != nil && !r.stopped.Load() && ctx.Err() == nil {
		msg := strings.TrimSpace(r.stderr.String())
		if msg == "" {
			msg = werr.Error()
		}
		r.err = fmt.Errorf("capture process failed: %s", msg)
	}
	el.closeEnded()
	close(r.done)
}

// Stop asks ffmpeg to finalize the container. An interrupt makes it
// flush the webm trailer and exit, which is what bounds the encoded
// duration on the deadline path.
func (r *recorder) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		if r.cmd != nil && r.cmd.Process != nil {
			_ = r.cmd.Process.Signal(os.Interrupt)
			return
		}
		// Never launched; settle immediately.
		if r.chunks != nil {
			close(r.chunks)
		}
		close(r.done)
	})
}

// kill hard-terminates the process; used by teardown paths where a
// graceful finalize is no longer wanted.
func (r *recorder) kill() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *recorder) Chunks() <-chan []byte { return r.chunks }

func (r *recorder) Done() <-chan struct{} { return r.done }

func (r *recorder) Err() error { return r.err }

func (r *recorder) MimeType() string { return r.opts.MimeType }
