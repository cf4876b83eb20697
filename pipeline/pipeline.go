// Package pipeline sequences the preview normalization stages:
// classify, convert when the runtime cannot play the source, probe the
// duration, trim when over the limit. Each invocation is independent and
// owns its capture sessions for their whole lifetime.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"clipnorm/capture"
	"clipnorm/media"
)

// Stage names are purely observational; the progress callback is never
// required for correctness.
type Stage string

const (
	StageValidating       Stage = "validating"
	StageConverting       Stage = "converting"
	StageCheckingDuration Stage = "checking duration"
	StageTrimming         Stage = "trimming"
)

// ProgressFunc receives coarse stage announcements as the pipeline runs.
type ProgressFunc func(Stage)

// Result is the pipeline output: the final asset plus notes about stages
// that were skipped.
type Result struct {
	Asset media.Asset
	Notes []string
}

// Pipeline is the orchestrator over one capture engine.
type Pipeline struct {
	engine *capture.Engine
	log    zerolog.Logger
}

func New(backend capture.Backend, opts capture.Options) *Pipeline {
	return &Pipeline{
		engine: capture.NewEngine(backend, opts),
		log:    opts.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Probe exposes the duration prober at the pipeline boundary.
func (p *Pipeline) Probe(ctx context.Context, asset media.Asset) (time.Duration, error) {
	return p.engine.Probe(ctx, asset)
}

// Capability exposes the runtime's playback judgment for the asset.
func (p *Pipeline) Capability(asset media.Asset) media.Capability {
	return p.engine.Capability(asset)
}

// ProcessForPreview runs the full normalization sequence and returns a
// new, independently playable asset bounded at limit. Inputs that are
// already playable and already short enough pass through untouched, so
// running the pipeline twice is a no-op the second time around.
func (p *Pipeline) ProcessForPreview(ctx context.Context, asset media.Asset, limit time.Duration, progress ProgressFunc) (Result, error) {
	report := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	report(StageValidating)
	if media.Classify(asset) == media.KindUnsupported {
		return Result{}, media.NewError(media.ErrInvalidKind, "%q is neither audio nor video", asset.Name)
	}

	res := Result{Asset: asset}

	if p.engine.Capability(asset).Playable() {
		res.Notes = append(res.Notes, "no conversion needed")
	} else {
		report(StageConverting)
		converted, err := p.engine.Transcode(ctx, asset)
		if err != nil {
			return Result{}, err
		}
		res.Asset = converted
	}

	report(StageCheckingDuration)
	d, err := p.engine.Probe(ctx, res.Asset)
	if err != nil {
		return Result{}, err
	}

	if d <= limit {
		res.Notes = append(res.Notes, "already under duration limit")
		return res, nil
	}

	report(StageTrimming)
	trimmed, err := p.engine.Trim(ctx, res.Asset, limit)
	if err != nil {
		return Result{}, err
	}
	res.Asset = trimmed

	p.log.Debug().
		Str("input", asset.Name).
		Str("output", res.Asset.Name).
		Dur("limit", limit).
		Msg("preview processing complete")
	return res, nil
}

// ValidateDuration is the strict entry point: instead of trimming an
// over-long asset it rejects it outright.
func (p *Pipeline) ValidateDuration(ctx context.Context, asset media.Asset, limit time.Duration) error {
	d, err := p.engine.Probe(ctx, asset)
	if err != nil {
		return err
	}
	if d > limit {
		return media.NewError(media.ErrDurationExceeded, "%q runs %s, limit is %s", asset.Name, d, limit)
	}
	return nil
}
