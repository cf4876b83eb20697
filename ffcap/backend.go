// Package ffcap is the production capture backend. It drives ffmpeg in
// real-time mode (-re) so a capture session plays the source at its
// native rate while re-recording the output into webm, the same
// play-and-recapture behavior the engine is built around. Probing uses
// ffprobe and never plays the source.
package ffcap

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"clipnorm/config"
	"clipnorm/media"
)

// Backend implements capture.Backend on top of the ffmpeg and ffprobe
// binaries.
type Backend struct {
	cfg     *config.Config
	tempDir string
	extra   []string
	log     zerolog.Logger
}

func New(cfg *config.Config, logger zerolog.Logger) (*Backend, error) {
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}
	if _, err := exec.LookPath(cfg.FFProbeBin); err != nil {
		return nil, fmt.Errorf("ffprobe binary not found or not in PATH: %s", cfg.FFProbeBin)
	}

	extra, err := SplitExtraArgs(cfg.CaptureExtra)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_EXTRA_ARGS: %w", err)
	}

	// One temp dir holds all staged inputs and task outputs.
	tempDir, err := os.MkdirTemp("", "clipnorm_")
	if err != nil {
		return nil, fmt.Errorf("could not create temp directory: %w", err)
	}
	cfg.TempDir = tempDir

	b := &Backend{
		cfg:     cfg,
		tempDir: tempDir,
		extra:   extra,
		log:     logger.With().Str("component", "ffcap").Logger(),
	}
	b.log.Info().Str("temp_dir", tempDir).Msg("capture backend ready")
	return b, nil
}

// CanPlayType reports the playback judgment for an exact encoded type.
// Only the webm variants this pipeline itself produces are considered
// playable without conversion; everything else forces normalization.
func (b *Backend) CanPlayType(mimeType string) media.Capability {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	base := mt
	params := ""
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		base = strings.TrimSpace(mt[:i])
		params = mt[i+1:]
	}

	switch base {
	case "audio/webm":
		if strings.Contains(params, "opus") {
			return media.CanPlay
		}
		return media.MayPlay
	case "video/webm":
		if strings.Contains(params, "vp8") {
			return media.CanPlay
		}
		return media.MayPlay
	default:
		return media.CannotPlay
	}
}

// SupportsRecording lists the container/codec pairs the recorder can
// produce, matching the engine's preference tables.
func (b *Backend) SupportsRecording(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/webm;codecs=opus",
		"audio/webm",
		"video/webm;codecs=vp8,opus",
		"video/webm":
		return true
	}
	return false
}

// checkResources verifies the host has headroom before a capture starts.
// A capture session pins a core for up to its full wall-clock duration,
// so admission control happens up front rather than mid-flight.
func (b *Backend) checkResources() error {
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		b.log.Warn().Err(err).Msg("could not get CPU usage")
	} else if len(p) > 0 && p[0] > (100.0-b.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU: current usage %.2f%%, idle threshold %.2f%%", p[0], b.cfg.ThrottleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		b.log.Warn().Err(err).Msg("could not get memory usage")
	} else if vm.Available < uint64(b.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, b.cfg.ThrottleFreeMem)
	}

	d, err := disk.Usage(b.tempDir)
	if err != nil {
		b.log.Warn().Err(err).Str("path", b.tempDir).Msg("could not get disk usage")
	} else if d.Free < uint64(b.cfg.ThrottleFreeDisk) {
		return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, b.cfg.ThrottleFreeDisk)
	}
	return nil
}

// Close removes the backend's temp directory.
func (b *Backend) Close() error {
	return os.RemoveAll(b.tempDir)
}
