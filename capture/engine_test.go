package capture_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipnorm/capture"
	"clipnorm/capture/capturetest"
	"clipnorm/media"
)

func wavAsset(name string) media.Asset {
	return media.Asset{Name: name, MIME: "audio/wav", Data: []byte("RIFFdata")}
}

func TestEngineProbe(t *testing.T) {
	t.Run("returns floored duration and releases the handle", func(t *testing.T) {
		backend := &capturetest.Backend{Dur: 90*time.Second + 700*time.Millisecond}
		eng := capture.NewEngine(backend, capture.Options{})

		d, err := eng.Probe(context.Background(), wavAsset("song.wav"))
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, d)
		assert.Equal(t, 1, backend.ElementsCreated())
		assert.True(t, backend.Balanced())
	})

	t.Run("rejects non-media input before allocating anything", func(t *testing.T) {
		backend := &capturetest.Backend{}
		eng := capture.NewEngine(backend, capture.Options{})

		_, err := eng.Probe(context.Background(), media.Asset{Name: "notes.txt", MIME: "text/plain"})
		require.Error(t, err)
		assert.Equal(t, media.ErrInvalidKind, media.KindOf(err))
		assert.Equal(t, 0, backend.ElementsCreated())
	})

	t.Run("surfaces decode errors and still releases", func(t *testing.T) {
		backend := &capturetest.Backend{MetadataErr: capturetest.ErrScripted}
		eng := capture.NewEngine(backend, capture.Options{})

		// A corrupted payload behind an .mp3 extension and empty MIME
		// type classifies as audio but fails at decode time.
		_, err := eng.Probe(context.Background(), media.Asset{Name: "broken.mp3", Data: []byte("junk")})
		require.Error(t, err)
		assert.Equal(t, media.ErrDecode, media.KindOf(err))
		assert.True(t, backend.Balanced())
	})
}

func TestEngineTranscode(t *testing.T) {
	t.Run("concatenates chunks into a webm asset", func(t *testing.T) {
		backend := &capturetest.Backend{
			Dur:    10 * time.Second,
			Chunks: [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")},
		}
		eng := capture.NewEngine(backend, capture.Options{})

		out, err := eng.Transcode(context.Background(), wavAsset("song.wav"))
		require.NoError(t, err)
		assert.Equal(t, "audio/webm;codecs=opus", out.MIME)
		assert.Equal(t, "song_converted.webm", out.Name)
		assert.Equal(t, []byte("aabbcc"), out.Data)
		assert.True(t, backend.Balanced())
		assert.Equal(t, 1, backend.TracksStopped())
	})

	t.Run("falls back along the codec preference list", func(t *testing.T) {
		backend := &capturetest.Backend{
			Dur:            5 * time.Second,
			Chunks:         [][]byte{[]byte("x")},
			RecordingTypes: []string{"audio/webm"},
		}
		eng := capture.NewEngine(backend, capture.Options{})

		out, err := eng.Transcode(context.Background(), wavAsset("song.wav"))
		require.NoError(t, err)
		assert.Equal(t, "audio/webm", out.MIME)
	})

	t.Run("video assets use the video preference list", func(t *testing.T) {
		backend := &capturetest.Backend{Dur: 5 * time.Second, Chunks: [][]byte{[]byte("v")}}
		eng := capture.NewEngine(backend, capture.Options{})

		out, err := eng.Transcode(context.Background(), media.Asset{Name: "clip.mp4", MIME: "video/mp4", Data: []byte("x")})
		require.NoError(t, err)
		assert.Equal(t, "video/webm;codecs=vp8,opus", out.MIME)
		assert.Equal(t, "clip_converted.webm", out.Name)
	})

	t.Run("rejects non-media input", func(t *testing.T) {
		backend := &capturetest.Backend{}
		eng := capture.NewEngine(backend, capture.Options{})

		_, err := eng.Transcode(context.Background(), media.Asset{Name: "notes.txt", MIME: "text/plain"})
		assert.Equal(t, media.ErrInvalidKind, media.KindOf(err))
		assert.Equal(t, 0, backend.ElementsCreated())
	})
}

// Every failure injection point must leave acquire and release counts
// balanced, with no double release.
func TestEngineReleaseInvariant(t *testing.T) {
	cases := []struct {
		name    string
		backend *capturetest.Backend
		kind    media.ErrorKind
	}{
		{"metadata load fails", &capturetest.Backend{MetadataErr: capturetest.ErrScripted}, media.ErrDecode},
		{"capture unsupported", &capturetest.Backend{CaptureErr: capturetest.ErrScripted}, media.ErrCaptureUnsupported},
		{"no recording type", &capturetest.Backend{RecordingTypes: []string{}}, media.ErrCaptureUnsupported},
		{"recorder construction fails", &capturetest.Backend{NewRecorderErr: capturetest.ErrScripted}, media.ErrTranscode},
		{"recorder start fails", &capturetest.Backend{RecorderStartErr: capturetest.ErrScripted}, media.ErrTranscode},
		{"playback rejected", &capturetest.Backend{PlayErr: capturetest.ErrScripted}, media.ErrTranscode},
		{"recorder error mid-capture", &capturetest.Backend{RecorderErr: capturetest.ErrScripted}, media.ErrTranscode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.backend.Dur = 10 * time.Second
			tc.backend.Chunks = [][]byte{[]byte("partial")}
			eng := capture.NewEngine(tc.backend, capture.Options{})

			_, err := eng.Transcode(context.Background(), wavAsset("song.wav"))
			require.Error(t, err)
			assert.Equal(t, tc.kind, media.KindOf(err))
			assert.True(t, tc.backend.Balanced(), "acquire/release counts must balance")
			assert.Equal(t, 0, tc.backend.DoubleReleases())
		})
	}
}

func TestEngineTrim(t *testing.T) {
	t.Run("short sources pass through without a capture session", func(t *testing.T) {
		backend := &capturetest.Backend{Dur: 10 * time.Second}
		eng := capture.NewEngine(backend, capture.Options{})

		in := wavAsset("short.wav")
		out, err := eng.Trim(context.Background(), in, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, in, out, "asset must be returned byte-for-byte unchanged")
		// Only the probe binds an element; no recorder is ever built.
		assert.Equal(t, 1, backend.ElementsCreated())
		assert.Equal(t, 0, backend.RecordersCreated())
		assert.True(t, backend.Balanced())
	})

	t.Run("long sources are captured and renamed with the limit suffix", func(t *testing.T) {
		backend := &capturetest.Backend{
			Dur:    90 * time.Second,
			Chunks: [][]byte{[]byte("trimmed")},
		}
		eng := capture.NewEngine(backend, capture.Options{})

		out, err := eng.Trim(context.Background(), wavAsset("long.wav"), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "long_30s.webm", out.Name)
		assert.Equal(t, "audio/webm;codecs=opus", out.MIME)
		assert.Equal(t, []byte("trimmed"), out.Data)
		assert.True(t, backend.Balanced())
	})

	t.Run("deadline stops an endless source within bounded wall-clock time", func(t *testing.T) {
		backend := &capturetest.Backend{
			Dur:     90 * time.Second,
			Chunks:  [][]byte{[]byte("a"), []byte("b")},
			Endless: true,
		}
		eng := capture.NewEngine(backend, capture.Options{})

		start := time.Now()
		out, err := eng.Trim(context.Background(), wavAsset("long.wav"), 50*time.Millisecond)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, []byte("ab"), out.Data)
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
		assert.Less(t, elapsed, 2*time.Second, "deadline must bound the operation")
		assert.True(t, backend.Balanced())
		assert.Equal(t, 1, backend.TracksStopped())
	})

	t.Run("cancellation releases resources", func(t *testing.T) {
		backend := &capturetest.Backend{Dur: 90 * time.Second, Endless: true}
		eng := capture.NewEngine(backend, capture.Options{})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := eng.Trim(ctx, wavAsset("long.wav"), time.Hour)
		require.Error(t, err)
		assert.Equal(t, media.ErrTranscode, media.KindOf(err))
		assert.True(t, backend.Balanced())
	})
}

func TestEngineCapability(t *testing.T) {
	backend := &capturetest.Backend{
		Capabilities: map[string]media.Capability{"audio/webm": media.CanPlay},
	}
	eng := capture.NewEngine(backend, capture.Options{})

	assert.Equal(t, media.CanPlay, eng.Capability(media.Asset{MIME: "audio/webm"}))
	assert.Equal(t, media.CannotPlay, eng.Capability(media.Asset{MIME: "audio/wav"}))
}

func TestPickRecordingType(t *testing.T) {
	backend := &capturetest.Backend{RecordingTypes: []string{"video/webm"}}

	mt, ok := capture.PickRecordingTypeForTest(backend, media.KindVideo)
	require.True(t, ok)
	assert.Equal(t, "video/webm", mt)

	_, ok = capture.PickRecordingTypeForTest(&capturetest.Backend{RecordingTypes: []string{}}, media.KindAudio)
	assert.False(t, ok)
}

func TestChunkOrderPreserved(t *testing.T) {
	var want bytes.Buffer
	var chunks [][]byte
	for i := 0; i < 20; i++ {
		b := []byte{byte(i)}
		chunks = append(chunks, b)
		want.Write(b)
	}
	backend := &capturetest.Backend{Dur: 5 * time.Second, Chunks: chunks}
	eng := capture.NewEngine(backend, capture.Options{})

	out, err := eng.Transcode(context.Background(), wavAsset("song.wav"))
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), out.Data)
}
