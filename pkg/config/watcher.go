package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch re-parses the configuration file whenever it changes and calls
// onChange with the result. Editors replace files with rename+create, so
// the parent directory is watched rather than the file itself. Events are
// debounced because a single save often produces several.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onChange func(*Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	parser := NewParser()
	logger = logger.With().Str("component", "watcher").Str("path", path).Logger()
	logger.Info().Msg("watching config")

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			cfg, err := parser.Load(path)
			if err != nil {
				logger.Warn().Err(err).Msg("config invalid")
			} else {
				logger.Info().Msg("config reloaded")
			}
			onChange(cfg, err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		}
	}
}
