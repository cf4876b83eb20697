package ffcap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"clipnorm/capture"
	"clipnorm/media"
)

// SplitExtraArgs securely splits the operator-supplied extra ffmpeg
// arguments. No shell is ever involved, but shell-like metacharacters
// are rejected outright so a bad config cannot smuggle anything odd into
// the capture command line.
func SplitExtraArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return nil, fmt.Errorf("disallowed character in argument: %s", arg)
		}
	}
	return args, nil
}

// buildCaptureArgs assembles the real-time capture command line. -re
// paces input at its native rate; output goes to stdout as webm with the
// policy bitrates from the recorder options.
func buildCaptureArgs(inputPath string, kind media.Kind, opts capture.RecorderOptions, extra []string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, extra...)
	args = append(args, "-re", "-i", inputPath)

	if kind == media.KindVideo && strings.HasPrefix(opts.MimeType, "video/") {
		args = append(args, "-c:v", "libvpx", "-b:v", strconv.Itoa(opts.VideoBitsPerSecond))
	} else {
		args = append(args, "-vn")
	}
	args = append(args, "-c:a", "libopus", "-b:a", strconv.Itoa(opts.AudioBitsPerSecond))
	args = append(args, "-f", "webm", "pipe:1")
	return args
}
