// Package app wires the analyzer components together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"pumpadvisor/internal/config"
	"pumpadvisor/internal/httpapi"
	"pumpadvisor/internal/llm"
	"pumpadvisor/internal/metrics"
	"pumpadvisor/internal/notify"
	"pumpadvisor/internal/pipeline"
	"pumpadvisor/internal/queue"
	"pumpadvisor/internal/settings"
	"pumpadvisor/internal/watch"
)

// App owns the long-lived pieces: queue, watcher, and HTTP server.
type App struct {
	cfg      config.Config
	analyzer *pipeline.Analyzer
	queue    *queue.Queue
	watcher  *watch.Watcher
	mux      *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure work dir: %w", err)
	}

	m := metrics.New()
	client := llm.New(nil, cfg.LLM)
	analyzer := pipeline.New(cfg, client, m)

	a := &App{cfg: cfg, analyzer: analyzer}
	a.queue = queue.New(cfg.QueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second, a.handleDropJob)
	a.watcher = watch.New(cfg, a.queue)

	mux := http.NewServeMux()
	httpapi.NewRouter(cfg, analyzer, m).Register(mux)
	a.mux = mux
	return a, nil
}

// Run starts workers, the drop-dir watcher, and the HTTP server, and
// blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if err := a.watcher.Backfill(ctx); err != nil {
		log.Warn().Err(err).Msg("drop dir backfill failed")
	}

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		a.queue.Stop(shutdownCtx)
	}()

	log.Info().Str("addr", a.cfg.HTTPPort).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Mux exposes the handler for tests.
func (a *App) Mux() *http.ServeMux { return a.mux }

// handleDropJob analyzes an archive placed in the drop directory using
// the configured default settings table and writes the recommendation
// next to the archive.
func (a *App) handleDropJob(ctx context.Context, job queue.Job) error {
	data, err := os.ReadFile(job.ArchivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	result, err := a.analyzer.Analyze(ctx, data, job.ID, settings.Defaults(a.cfg.Advisor))
	if err != nil {
		return err
	}
	outPath := watch.RecommendationPath(job.ArchivePath)
	if err := os.WriteFile(outPath, []byte(result.Recommendation), 0o644); err != nil {
		return fmt.Errorf("write recommendation: %w", err)
	}
	if err := notify.Send(ctx, a.cfg, notify.Message{
		Text: fmt.Sprintf("Recommendation ready for %s", job.ID),
	}); err != nil {
		log.Warn().Err(err).Str("job", job.ID).Msg("webhook notify failed")
	}
	return nil
}
