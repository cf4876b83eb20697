// Package media holds the asset model shared by every pipeline stage:
// the immutable asset value, kind/capability classification and the
// pipeline error taxonomy.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the coarse media category derived from MIME type and filename.
type Kind string

const (
	KindAudio       Kind = "audio"
	KindVideo       Kind = "video"
	KindUnsupported Kind = "unsupported"
)

// Capability is the runtime's self-reported ability to decode a given
// encoded type without transcoding. Both CanPlay and MayPlay are treated
// as good enough to skip conversion; only CannotPlay forces a capture.
type Capability string

const (
	CanPlay    Capability = "probably"
	MayPlay    Capability = "maybe"
	CannotPlay Capability = ""
)

// Playable reports whether the capability is good enough to skip conversion.
func (c Capability) Playable() bool {
	return c == CanPlay || c == MayPlay
}

// Asset is an opaque binary payload with its declared MIME type and
// filename. Assets are immutable once constructed; the pipeline always
// produces a new Asset rather than mutating its input.
type Asset struct {
	Name string
	MIME string
	Data []byte
}

// Size returns the payload size in bytes.
func (a Asset) Size() int64 { return int64(len(a.Data)) }

// Ext returns the lower-cased filename extension including the dot.
func (a Asset) Ext() string {
	return strings.ToLower(filepath.Ext(a.Name))
}

// base returns the filename with its extension stripped.
func (a Asset) base() string {
	return strings.TrimSuffix(a.Name, filepath.Ext(a.Name))
}

// ConvertedName builds the output filename for a plain conversion:
// <base>_converted.<ext>.
func (a Asset) ConvertedName(ext string) string {
	return fmt.Sprintf("%s_converted.%s", a.base(), ext)
}

// TrimmedName builds the output filename for a trimmed capture. The
// suffix carries the limit so a 30s trim of song.wav becomes
// song_30s.webm, keeping it distinct from the plain conversion suffix.
func (a Asset) TrimmedName(limitSeconds int, ext string) string {
	return fmt.Sprintf("%s_%ds.%s", a.base(), limitSeconds, ext)
}

// ExtForMIME maps a recorder output MIME type to a filename extension.
// Only webm variants are ever produced by the capture pipeline.
func ExtForMIME(mimeType string) string {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}
