// Package watch monitors the drop directory for new export archives and
// feeds them to the analysis queue.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"pumpadvisor/internal/config"
	"pumpadvisor/internal/queue"
)

// Watcher enqueues an analysis job for every zip that appears in DropDir.
type Watcher struct {
	cfg   config.Config
	queue *queue.Queue
}

func New(cfg config.Config, q *queue.Queue) *Watcher {
	return &Watcher{cfg: cfg, queue: q}
}

// Start begins watching. A disabled watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Info().Msg("drop dir watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isArchive(evt.Name) {
					w.enqueue(evt.Name)
				}
			case err := <-watcher.Errors:
				log.Error().Err(err).Msg("watcher error")
			}
		}
	}()
	log.Info().Str("dir", w.cfg.DropDir).Msg("watching drop dir")
	return watcher.Add(w.cfg.DropDir)
}

// Backfill enqueues archives already present in DropDir at startup,
// skipping any that have a recommendation file next to them.
func (w *Watcher) Backfill(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		return nil
	}
	entries, err := filepath.Glob(filepath.Join(w.cfg.DropDir, "*.zip"))
	if err != nil {
		return err
	}
	for _, path := range entries {
		if _, err := os.Stat(RecommendationPath(path)); err == nil {
			continue
		}
		w.enqueue(path)
	}
	return nil
}

// RecommendationPath names the output file written next to an archive.
func RecommendationPath(archivePath string) string {
	base := strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
	return base + ".recommendation.md"
}

func (w *Watcher) enqueue(path string) {
	w.queue.Enqueue(queue.Job{ID: filepath.Base(path), ArchivePath: path})
}

func isArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}
