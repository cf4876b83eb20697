package ffcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipnorm/capture"
	"clipnorm/media"
)

func TestSplitExtraArgs(t *testing.T) {
	t.Run("empty config yields no args", func(t *testing.T) {
		args, err := SplitExtraArgs("   ")
		require.NoError(t, err)
		assert.Nil(t, args)
	})

	t.Run("splits quoted arguments", func(t *testing.T) {
		args, err := SplitExtraArgs(`-threads 2 -metadata "title=my clip"`)
		require.NoError(t, err)
		assert.Equal(t, []string{"-threads", "2", "-metadata", "title=my clip"}, args)
	})

	t.Run("rejects shell metacharacters", func(t *testing.T) {
		_, err := SplitExtraArgs(`-threads 2; rm -rf /`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character")
	})

	t.Run("rejects command substitution", func(t *testing.T) {
		_, err := SplitExtraArgs(`-vf "crop=$(($RANDOM))"`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disallowed character")
	})
}

func TestBuildCaptureArgs(t *testing.T) {
	opts := capture.RecorderOptions{
		MimeType:           "audio/webm;codecs=opus",
		AudioBitsPerSecond: 128000,
		VideoBitsPerSecond: 2500000,
	}

	t.Run("audio capture drops video and encodes opus", func(t *testing.T) {
		args := buildCaptureArgs("/tmp/in.wav", media.KindAudio, opts, nil)
		assert.Contains(t, args, "-re")
		assert.Contains(t, args, "-vn")
		assert.NotContains(t, args, "libvpx")
		assert.Equal(t, "pipe:1", args[len(args)-1])

		joined := ""
		for _, a := range args {
			joined += a + " "
		}
		assert.Contains(t, joined, "-c:a libopus -b:a 128000")
	})

	t.Run("video capture encodes vp8 plus opus", func(t *testing.T) {
		vopts := opts
		vopts.MimeType = "video/webm;codecs=vp8,opus"
		args := buildCaptureArgs("/tmp/in.mp4", media.KindVideo, vopts, nil)
		assert.Contains(t, args, "libvpx")
		assert.Contains(t, args, "2500000")
		assert.NotContains(t, args, "-vn")
	})

	t.Run("extra args come before the input", func(t *testing.T) {
		args := buildCaptureArgs("/tmp/in.wav", media.KindAudio, opts, []string{"-threads", "2"})
		threadsAt, inputAt := -1, -1
		for i, a := range args {
			switch a {
			case "-threads":
				threadsAt = i
			case "-i":
				inputAt = i
			}
		}
		require.NotEqual(t, -1, threadsAt)
		require.NotEqual(t, -1, inputAt)
		assert.Less(t, threadsAt, inputAt)
	})
}

func TestCanPlayType(t *testing.T) {
	b := &Backend{}

	assert.Equal(t, media.CanPlay, b.CanPlayType("audio/webm;codecs=opus"))
	assert.Equal(t, media.CanPlay, b.CanPlayType("video/webm;codecs=vp8,opus"))
	assert.Equal(t, media.MayPlay, b.CanPlayType("audio/webm"))
	assert.Equal(t, media.MayPlay, b.CanPlayType("video/webm"))
	assert.Equal(t, media.CannotPlay, b.CanPlayType("audio/wav"))
	assert.Equal(t, media.CannotPlay, b.CanPlayType("audio/mpeg"))
	assert.Equal(t, media.CannotPlay, b.CanPlayType(""))
}

func TestSupportsRecording(t *testing.T) {
	b := &Backend{}

	assert.True(t, b.SupportsRecording("audio/webm;codecs=opus"))
	assert.True(t, b.SupportsRecording("audio/webm"))
	assert.True(t, b.SupportsRecording("video/webm;codecs=vp8,opus"))
	assert.True(t, b.SupportsRecording("video/webm"))
	assert.False(t, b.SupportsRecording("audio/mp4"))
	assert.False(t, b.SupportsRecording("video/mp4"))
}
