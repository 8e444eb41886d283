package retention

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is the quiet period before a changed policy file is
// reloaded.
const DefaultReloadDebounce = 100 * time.Millisecond

// Watch reloads the policy file at path whenever it changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file atomically are picked up. Invalid files are logged and ignored.
func (r *Registry) Watch(ctx context.Context, path string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve policy file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	r.logger.Info("watching retention policy file", "path", abs)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	reload := func() {
		if err := r.LoadFile(abs); err != nil {
			r.logger.Error("retention policy reload failed", "path", abs, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != abs || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				r.logger.Warn("retention policy file removed, keeping current policies", "path", abs)
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			r.logger.Error("policy file watcher error", "error", err)
		}
	}
}
