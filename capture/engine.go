package capture

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"clipnorm/media"
)

// Policy constants. The generic trim limit and the preview limit differ
// on purpose and are kept as separate knobs; callers pick one explicitly.
const (
	DefaultTrimLimit = 30 * time.Second
	PreviewLimit     = 45 * time.Second

	DefaultAudioBitsPerSecond = 128_000
	DefaultVideoBitsPerSecond = 2_500_000
)

// Engine drives capture sessions against an injected backend. An Engine
// is stateless across invocations; concurrent calls are independent.
type Engine struct {
	backend  Backend
	audioBPS int
	videoBPS int
	log      zerolog.Logger
}

// Options tune the engine's recorder policy. Zero values fall back to the
// defaults above.
type Options struct {
	AudioBitsPerSecond int
	VideoBitsPerSecond int
	Logger             zerolog.Logger
}

func NewEngine(backend Backend, opts Options) *Engine {
	e := &Engine{
		backend:  backend,
		audioBPS: opts.AudioBitsPerSecond,
		videoBPS: opts.VideoBitsPerSecond,
		log:      opts.Logger.With().Str("component", "capture").Logger(),
	}
	if e.audioBPS <= 0 {
		e.audioBPS = DefaultAudioBitsPerSecond
	}
	if e.videoBPS <= 0 {
		e.videoBPS = DefaultVideoBitsPerSecond
	}
	return e
}

// Capability asks the backend whether the asset's exact encoded type can
// be played without conversion.
func (e *Engine) Capability(asset media.Asset) media.Capability {
	return e.backend.CanPlayType(asset.MIME)
}

// Probe loads the asset just far enough to read its intrinsic duration,
// floored to whole seconds. The temporary element handle is released on
// every path, including decode failures.
func (e *Engine) Probe(ctx context.Context, asset media.Asset) (time.Duration, error) {
	if media.Classify(asset) == media.KindUnsupported {
		return 0, media.NewError(media.ErrInvalidKind, "cannot probe %q: not audio or video", asset.Name)
	}

	el, err := e.backend.NewElement(ctx, asset)
	if err != nil {
		return 0, media.WrapError(media.ErrDecode, err, "loading %q", asset.Name)
	}
	defer el.Release()

	el.Mute()
	if err := el.AwaitMetadata(ctx); err != nil {
		return 0, media.WrapError(media.ErrDecode, err, "loading metadata for %q", asset.Name)
	}
	return el.Duration().Truncate(time.Second), nil
}

// Transcode re-encodes the asset into a guaranteed-playable webm variant
// by playing it end to end while recording the captured output. The
// output filename carries the _converted suffix.
func (e *Engine) Transcode(ctx context.Context, asset media.Asset) (media.Asset, error) {
	kind := media.Classify(asset)
	if kind == media.KindUnsupported {
		return media.Asset{}, media.NewError(media.ErrInvalidKind, "cannot convert %q: not audio or video", asset.Name)
	}
	return e.capture(ctx, asset, kind, 0, func(ext string) string {
		return asset.ConvertedName(ext)
	})
}

// Trim bounds the asset's encoded duration to limit. Sources already at
// or under the limit are returned unchanged without ever constructing a
// capture session. Longer sources are captured with a hard deadline that
// starts when recording starts and fires the same stop-and-release path
// as a natural completion.
func (e *Engine) Trim(ctx context.Context, asset media.Asset, limit time.Duration) (media.Asset, error) {
	d, err := e.Probe(ctx, asset)
	if err != nil {
		return media.Asset{}, err
	}
	if d <= limit {
		e.log.Debug().Str("asset", asset.Name).Dur("duration", d).Msg("already under duration limit, skipping trim")
		return asset, nil
	}

	kind := media.Classify(asset)
	limitSeconds := int(limit / time.Second)
	return e.capture(ctx, asset, kind, limit, func(ext string) string {
		return asset.TrimmedName(limitSeconds, ext)
	})
}

// capture runs one full capture session: bind, await metadata, derive a
// live stream, record until natural end or deadline, finalize. The
// session's element handle and stream tracks are released exactly once on
// every exit path; that invariant is the load-bearing property of this
// function.
func (e *Engine) capture(ctx context.Context, asset media.Asset, kind media.Kind, limit time.Duration, rename func(ext string) string) (media.Asset, error) {
	el, err := e.backend.NewElement(ctx, asset)
	if err != nil {
		return media.Asset{}, media.WrapError(media.ErrDecode, err, "binding %q", asset.Name)
	}
	el.Mute()

	if err := el.AwaitMetadata(ctx); err != nil {
		el.Release()
		return media.Asset{}, media.WrapError(media.ErrDecode, err, "loading metadata for %q", asset.Name)
	}

	stream, err := el.CaptureStream()
	if err != nil {
		el.Release()
		return media.Asset{}, media.WrapError(media.ErrCaptureUnsupported, err, "capturing stream from %q", asset.Name)
	}

	// From here on teardown must run exactly once, whatever happens.
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		stream.StopTracks()
		el.Release()
	}
	defer release()

	mimeType, ok := pickRecordingType(e.backend, kind)
	if !ok {
		return media.Asset{}, media.NewError(media.ErrCaptureUnsupported, "no supported recording type for %s output", kind)
	}

	rec, err := e.backend.NewRecorder(stream, RecorderOptions{
		MimeType:           mimeType,
		AudioBitsPerSecond: e.audioBPS,
		VideoBitsPerSecond: e.videoBPS,
	})
	if err != nil {
		return media.Asset{}, media.WrapError(media.ErrTranscode, err, "constructing recorder for %q", asset.Name)
	}

	if err := rec.Start(); err != nil {
		return media.Asset{}, media.WrapError(media.ErrTranscode, err, "starting recorder for %q", asset.Name)
	}
	if err := el.Play(ctx); err != nil {
		rec.Stop()
		return media.Asset{}, media.WrapError(media.ErrTranscode, err, "playback of %q rejected", asset.Name)
	}

	// Recording and playback start together; the deadline is armed now
	// so the encoded duration is bounded by limit regardless of source
	// length.
	var deadline <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	e.log.Debug().
		Str("asset", asset.Name).
		Str("output_type", mimeType).
		Dur("limit", limit).
		Msg("capture session started")

	var chunks [][]byte
	ended := el.Ended()
	chunkCh := rec.Chunks()
	for {
		select {
		case b, ok := <-chunkCh:
			if !ok {
				chunkCh = nil
				continue
			}
			chunks = append(chunks, b)

		case <-ended:
			ended = nil
			rec.Stop()
			el.Pause()

		case <-deadline:
			deadline = nil
			e.log.Debug().Str("asset", asset.Name).Msg("deadline fired, stopping recorder")
			rec.Stop()
			el.Pause()

		case <-ctx.Done():
			rec.Stop()
			el.Pause()
			return media.Asset{}, media.WrapError(media.ErrTranscode, ctx.Err(), "capture of %q canceled", asset.Name)

		case <-rec.Done():
			// Drain whatever the recorder flushed on the way out.
			for b := range rec.Chunks() {
				chunks = append(chunks, b)
			}
			if err := rec.Err(); err != nil {
				return media.Asset{}, media.WrapError(media.ErrTranscode, err, "recording %q", asset.Name)
			}
			outType := rec.MimeType()
			out := media.Asset{
				Name: rename(media.ExtForMIME(outType)),
				MIME: outType,
				Data: bytes.Join(chunks, nil),
			}
			release()
			e.log.Debug().
				Str("asset", asset.Name).
				Str("output", out.Name).
				Int64("bytes", out.Size()).
				Msg("capture session finished")
			return out, nil
		}
	}
}
