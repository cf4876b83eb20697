package media

import (
	"fmt"
	"strings"
)

// Allow-lists consulted read-only by the classifier. Ordering is cosmetic;
// membership is what matters.
var (
	audioMIMETypes = []string{
		"audio/mpeg",
		"audio/mp3",
		"audio/mp4",
		"audio/x-m4a",
		"audio/wav",
		"audio/x-wav",
		"audio/wave",
		"audio/ogg",
		"audio/webm",
		"audio/aac",
		"audio/flac",
	}

	audioExtensions = []string{".mp3", ".m4a", ".wav", ".flac", ".ogg", ".aac", ".weba"}

	videoMIMETypes = []string{
		"video/mp4",
		"video/webm",
		"video/ogg",
		"video/quicktime",
		"video/x-matroska",
		"video/x-msvideo",
	}

	videoExtensions = []string{".mp4", ".m4v", ".webm", ".ogv", ".mov", ".mkv", ".avi"}

	// uploadAudioExtensions is the stricter allow-list enforced at the
	// submission boundary. The generic classifier accepts more.
	uploadAudioExtensions = []string{".mp3", ".m4a", ".wav"}
)

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// baseMIME strips any parameters ("audio/webm;codecs=opus" -> "audio/webm")
// and normalizes case and whitespace.
func baseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Classify derives the asset's kind from its MIME type and filename
// extension. Browsers frequently omit or mis-report the MIME type for
// user-dropped files, so the extension is authoritative when the MIME
// type is empty or unrecognized: an asset counts as audio if its
// extension is in the audio set and its MIME type is either in the audio
// set or empty. Video is handled the same way. Cheap string checks only,
// nothing is decoded.
func Classify(a Asset) Kind {
	mime := baseMIME(a.MIME)
	ext := a.Ext()

	switch {
	case containsFold(audioMIMETypes, mime):
		return KindAudio
	case containsFold(videoMIMETypes, mime):
		return KindVideo
	}

	// MIME type is empty or unrecognized; fall back to the extension.
	switch {
	case containsFold(audioExtensions, ext):
		return KindAudio
	case containsFold(videoExtensions, ext):
		return KindVideo
	}
	return KindUnsupported
}

// AcceptUpload applies the submission-boundary policy: audio uploads must
// carry one of the strict extensions (.mp3/.m4a/.wav) with a matching or
// empty MIME type; video uploads go through the generic classifier.
func AcceptUpload(a Asset) error {
	mime := baseMIME(a.MIME)
	if containsFold(uploadAudioExtensions, a.Ext()) {
		if mime == "" || containsFold(audioMIMETypes, mime) {
			return nil
		}
		return fmt.Errorf("declared type %q does not match audio extension %q", a.MIME, a.Ext())
	}
	if Classify(a) == KindVideo {
		return nil
	}
	return fmt.Errorf("file %q is not an accepted audio or video upload", a.Name)
}
