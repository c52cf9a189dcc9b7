package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a drop directory and emits file paths once they have
// stopped changing for the settle time. Writers that stream a large
// file into the directory touch it repeatedly; each write resets the
// clock, so a path is only emitted when the upload is plausibly done.
type Watcher struct {
	dir        string
	settleTime time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewWatcher(dir string, settleTime time.Duration) *Watcher {
	return &Watcher{
		dir:        dir,
		settleTime: settleTime,
		logger:     slog.Default(),
		lastSeen:   make(map[string]time.Time),
	}
}

// Watch runs until ctx is done, sending settled file paths to fileChan.
// Files already present at startup are picked up too.
func (w *Watcher) Watch(ctx context.Context, fileChan chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching source directory", "dir", w.dir)

	w.scanExisting()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				w.touch(event.Name)
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.forget(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)

		case <-ticker.C:
			for _, path := range w.settled() {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("failed to read source directory", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.touch(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) touch(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.mu.Lock()
	if _, known := w.lastSeen[path]; !known {
		w.logger.Info("new file detected", "file", path)
	}
	w.lastSeen[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.lastSeen, path)
	w.mu.Unlock()
}

// settled returns the paths quiet for at least the settle time and
// drops them from tracking so they are emitted once.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	now := time.Now()
	for path, seen := range w.lastSeen {
		if now.Sub(seen) >= w.settleTime {
			ready = append(ready, path)
			delete(w.lastSeen, path)
		}
	}
	return ready
}
