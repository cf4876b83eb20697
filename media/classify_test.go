package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		mime string
		want Kind
	}{
		{"song.mp3", "audio/mpeg", KindAudio},
		{"song.mp3", "audio/mp3", KindAudio},
		{"song.m4a", "audio/x-m4a", KindAudio},
		{"song.wav", "audio/wav", KindAudio},
		{"song.flac", "audio/flac", KindAudio},
		{"song.ogg", "audio/ogg", KindAudio},
		// Browsers often drop or mangle the MIME type for user-dropped
		// files; the extension carries the decision then.
		{"song.mp3", "", KindAudio},
		{"song.MP3", "", KindAudio},
		{"song.m4a", "application/octet-stream", KindAudio},
		{"clip.mp4", "video/mp4", KindVideo},
		{"clip.mov", "video/quicktime", KindVideo},
		{"clip.mkv", "", KindVideo},
		{"clip.webm", "video/webm", KindVideo},
		// MIME type wins when it is recognized, whatever the extension.
		{"clip.bin", "audio/webm;codecs=opus", KindAudio},
		{"notes.txt", "text/plain", KindUnsupported},
		{"archive.zip", "application/zip", KindUnsupported},
		{"noext", "", KindUnsupported},
	}

	for _, tc := range cases {
		got := Classify(Asset{Name: tc.name, MIME: tc.mime})
		assert.Equal(t, tc.want, got, "Classify(%q, %q)", tc.name, tc.mime)
	}
}

func TestAcceptUpload(t *testing.T) {
	t.Run("strict audio extensions pass", func(t *testing.T) {
		assert.NoError(t, AcceptUpload(Asset{Name: "a.mp3", MIME: "audio/mpeg"}))
		assert.NoError(t, AcceptUpload(Asset{Name: "a.m4a", MIME: ""}))
		assert.NoError(t, AcceptUpload(Asset{Name: "a.WAV", MIME: "audio/wave"}))
	})

	t.Run("looser audio extensions are rejected at the boundary", func(t *testing.T) {
		// The generic classifier accepts flac, the upload boundary does not.
		assert.Equal(t, KindAudio, Classify(Asset{Name: "a.flac", MIME: ""}))
		assert.Error(t, AcceptUpload(Asset{Name: "a.flac", MIME: "audio/flac"}))
	})

	t.Run("mismatched MIME type is rejected", func(t *testing.T) {
		assert.Error(t, AcceptUpload(Asset{Name: "a.mp3", MIME: "text/plain"}))
	})

	t.Run("video uploads use the generic classifier", func(t *testing.T) {
		assert.NoError(t, AcceptUpload(Asset{Name: "clip.mp4", MIME: "video/mp4"}))
		assert.Error(t, AcceptUpload(Asset{Name: "notes.txt", MIME: "text/plain"}))
	})
}

func TestOutputNames(t *testing.T) {
	a := Asset{Name: "my song.wav"}
	assert.Equal(t, "my song_converted.webm", a.ConvertedName("webm"))
	assert.Equal(t, "my song_30s.webm", a.TrimmedName(30, "webm"))

	noExt := Asset{Name: "recording"}
	assert.Equal(t, "recording_converted.webm", noExt.ConvertedName("webm"))
}

func TestExtForMIME(t *testing.T) {
	assert.Equal(t, "webm", ExtForMIME("audio/webm;codecs=opus"))
	assert.Equal(t, "webm", ExtForMIME("video/webm"))
	assert.Equal(t, "ogg", ExtForMIME("audio/ogg"))
	assert.Equal(t, "webm", ExtForMIME("application/unknown"))
}

func TestCapabilityPlayable(t *testing.T) {
	assert.True(t, CanPlay.Playable())
	assert.True(t, MayPlay.Playable())
	assert.False(t, CannotPlay.Playable())
}
