package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"clipnorm/config"
	"clipnorm/media"
	"clipnorm/task"
)

// Runner bridges the task manager and the pipeline: it loads a task's
// staged input, runs the preview normalization and writes the output
// next to the other task artifacts.
type Runner struct {
	pl  *Pipeline
	cfg *config.Config
	log zerolog.Logger
}

func NewRunner(pl *Pipeline, cfg *config.Config, logger zerolog.Logger) *Runner {
	return &Runner{
		pl:  pl,
		cfg: cfg,
		log: logger.With().Str("component", "runner").Logger(),
	}
}

// Run implements task.PreviewRunner.
func (r *Runner) Run(ctx context.Context, t *task.Task) error {
	data, err := os.ReadFile(t.InputPath)
	if err != nil {
		return fmt.Errorf("reading staged input: %w", err)
	}

	asset := media.Asset{Name: t.InputName, MIME: t.InputMIME, Data: data}
	res, err := r.pl.ProcessForPreview(ctx, asset, t.Limit, func(s Stage) {
		t.Stage = string(s)
	})
	if err != nil {
		return err
	}

	ext := strings.TrimPrefix(filepath.Ext(res.Asset.Name), ".")
	if ext == "" {
		ext = media.ExtForMIME(res.Asset.MIME)
	}
	outPath := filepath.Join(r.cfg.TempDir, fmt.Sprintf("%s_output.%s", t.ID, ext))
	if err := os.WriteFile(outPath, res.Asset.Data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	t.OutputPath = outPath
	t.OutputName = res.Asset.Name
	t.OutputMIME = res.Asset.MIME
	t.Notes = res.Notes
	r.log.Debug().
		Str("task", t.ID).
		Str("output", res.Asset.Name).
		Int("bytes", len(res.Asset.Data)).
		Msg("preview written")
	return nil
}
