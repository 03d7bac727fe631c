package policy

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when a policy file changes on disk. A Policy stays
// immutable for the lifetime of a wrapper instance, so the callback's job
// is to build a replacement wrapper (or flag that a restart is needed),
// never to mutate a live policy.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
}

// Watch starts watching the policy file and invokes onChange with the
// freshly loaded policy after each write. Load failures are logged and
// skipped; the previous policy remains in effect.
func Watch(path string, logger *slog.Logger, onChange func(Policy)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: create watcher: %w", err)
	}

	// Watch the directory rather than the file so atomic rename-based
	// saves keep being observed.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("policy: watch %s: %w", path, err)
	}

	w := &Watcher{watcher: fsw, path: path, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				p, err := LoadFile(path)
				if err != nil {
					logger.Warn("policy file changed but reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("policy file changed", "path", path)
				onChange(p)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("policy watcher error", "error", err)
			}
		}
	}()

	return w, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
