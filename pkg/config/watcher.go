package config

import (
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/cubicler/cubicler/pkg/logger"
)

// watchFile best-effort watches a local file path for writes and calls
// invalidate when one occurs. It is a latency optimization only: the TTL
// cache remains authoritative, and a failure to start the watcher (e.g. the
// source is a URL, or inotify is unavailable) is logged and ignored.
func watchFile(envVar string, invalidate func()) {
	source := os.Getenv(envVar)
	if source == "" || strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("config watcher: failed to start for %s: %v", envVar, err)
		return
	}

	if err := watcher.Add(source); err != nil {
		logger.Warnf("config watcher: failed to watch %s: %v", source, err)
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Debugf("config watcher: %s changed, invalidating cache", source)
					invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("config watcher: error watching %s: %v", source, err)
			}
		}
	}()
}
