// Package pipeline runs one upload end to end: extract, load, clean,
// build the prompt, and fetch the recommendation. Each run works in a
// uniquely named directory that is removed on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pumpadvisor/internal/archive"
	"pumpadvisor/internal/chart"
	"pumpadvisor/internal/config"
	"pumpadvisor/internal/metrics"
	"pumpadvisor/internal/prompt"
	"pumpadvisor/internal/settings"
	"pumpadvisor/internal/tabular"
)

// Completer is the outbound dependency; satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analyzer orchestrates the per-request analysis pipeline.
type Analyzer struct {
	cfg     config.Config
	client  Completer
	metrics *metrics.Metrics
}

// Result is what a successful run produces.
type Result struct {
	Recommendation string
	// ChartPNG is nil when the CGM table has no plottable series.
	ChartPNG []byte
}

// New wires an analyzer.
func New(cfg config.Config, client Completer, m *metrics.Metrics) *Analyzer {
	return &Analyzer{cfg: cfg, client: client, metrics: m}
}

// Analyze processes one uploaded archive together with an hourly settings
// table. All artifacts are request-scoped; nothing is cached or persisted.
func (a *Analyzer) Analyze(ctx context.Context, data []byte, filename string, hourly []settings.HourlySetting) (Result, error) {
	a.metrics.RecordStart()
	requestID := uuid.NewString()
	logger := log.With().Str("request_id", requestID).Str("archive", filename).Logger()

	workDir := filepath.Join(a.cfg.WorkDir, requestID)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Str("dir", workDir).Msg("work dir cleanup failed")
		}
	}()

	result, err := a.run(ctx, workDir, data, filename, hourly, logger)
	a.metrics.RecordCompletion(err)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed")
		return Result{}, err
	}
	logger.Info().Int("recommendation_bytes", len(result.Recommendation)).Msg("analysis complete")
	return result, nil
}

func (a *Analyzer) run(ctx context.Context, workDir string, data []byte, filename string, hourly []settings.HourlySetting, logger zerolog.Logger) (Result, error) {
	if len(hourly) != settings.Hours {
		return Result{}, fmt.Errorf("expected %d hourly settings, got %d: %w", settings.Hours, len(hourly), settings.ErrInvalidSetting)
	}

	if err := archive.SaveAndExtract(data, filename, workDir); err != nil {
		return Result{}, err
	}

	raw, err := tabular.LoadAll(workDir)
	if err != nil {
		return Result{}, err
	}
	cleaned, err := tabular.CleanAll(raw, a.cfg.Advisor.AlarmExclude)
	if err != nil {
		return Result{}, err
	}

	user, err := prompt.BuildUser(hourly, cleaned)
	if err != nil {
		return Result{}, err
	}

	recommendation, err := a.client.Complete(ctx, a.cfg.Advisor.SystemPrompt, user)
	if err != nil {
		return Result{}, err
	}

	out := Result{Recommendation: recommendation}
	if png, err := chart.RenderCGM(cleaned.CGM); err == nil {
		out.ChartPNG = png
	} else {
		logger.Debug().Err(err).Msg("cgm chart skipped")
	}
	return out, nil
}
