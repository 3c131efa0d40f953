package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/intentmarket/pkg/config"
)

// configDebounce absorbs the burst of events editors emit on save.
const configDebounce = 200 * time.Millisecond

// WatchConfig watches the config file and applies log level changes to
// level until ctx is cancelled. Other settings need a restart; invalid
// files are logged and ignored.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temp file over the original are still seen.
func WatchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("path", abs))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(configDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(configDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			reloadLogLevel(abs, level, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reloadLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		logger.Warn("config watcher: reload failed", slog.String("error", err.Error()))
		return
	}
	if old := level.Level(); old != cfg.App.LogLevel {
		level.Set(cfg.App.LogLevel)
		logger.Info("config watcher: log level changed",
			slog.String("from", old.String()),
			slog.String("to", cfg.App.LogLevel.String()))
	}
}
