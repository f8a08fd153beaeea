package patternstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher drives live reload of a Store's pattern directory, following the
// same watch-and-react shape as pkg/prefetch's git HEAD watcher: one
// fsnotify.Watcher, one background goroutine, a stop channel closed at
// most once.
type Watcher struct {
	store    *Store
	fsWatch  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching the Store's configured directory (recursively) for
// pattern file changes, reloading the Store on every create/write/remove/
// rename of a .yaml or .yml file. The caller must call Stop on the
// returned Watcher, or cancel ctx, to release the underlying OS watches.
func (s *Store) Watch(ctx context.Context) (*Watcher, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("patternstore: cannot watch an empty directory")
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("patternstore: create watcher: %w", err)
	}

	err = filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fsWatch.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsWatch.Close()
		return nil, fmt.Errorf("patternstore: watch %s: %w", s.dir, err)
	}

	w := &Watcher{store: s, fsWatch: fsWatch, stop: make(chan struct{})}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsWatch.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.fsWatch.Events:
			if !ok {
				return
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.store.Reload(); err != nil {
				w.store.logger.Warn(ctx, "patternstore: reload after fs event failed",
					zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn(ctx, "patternstore: watcher error", zap.Error(err))
		}
	}
}

// Stop releases the watcher's OS resources. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
