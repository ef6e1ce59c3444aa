package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDelay is how long Watch waits after the last change before calling
// back.
const WatchDelay = 500 * time.Millisecond

// Watch calls fn each time the file at path is written or replaced, until
// ctx is done. Bursts of events within WatchDelay collapse into one call,
// and calls never overlap. Errors from fn are logged and watching goes on.
//
// The parent directory is watched rather than the file so that editors
// which save by rename keep triggering.
func Watch(ctx context.Context, path string, fn func(context.Context) error, log zerolog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	log = log.With().Str("component", "watch").Str("file", abs).Logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pipeline: failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("pipeline: watch %s: %w", abs, err)
	}
	log.Info().Msg("Watching model")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug().Str("op", event.Op.String()).Msg("Model changed")
			if timer == nil {
				timer = time.NewTimer(WatchDelay)
			} else {
				timer.Reset(WatchDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Msg("Rebuild failed")
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
