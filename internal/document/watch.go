package document

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reports writes to the file at path until ctx is done, then closes
// the returned channel. Bursts of writes are coalesced into one signal.
func Watch(ctx context.Context, path string, logger *log.Logger) (<-chan struct{}, error) {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// editors often replace files, so the directory is watched
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Debug("fsnotify watching dir", "dir", dir)

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != abs || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
					continue
				}
				logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("fsnotify error", "dir", dir, "error", err)
			}
		}
	}()
	return changes, nil
}
