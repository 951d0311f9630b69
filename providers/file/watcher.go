package file

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/latticectl/lattice/internal/telemetry"
)

// Watcher is the file kind's resource.Provider: a class-level fsnotify
// watch over every directory a managed file lives in, started once by
// Prefetch regardless of how many file resources share it. It does not
// feed drift back into Evaluate — the engine re-stats on every run
// regardless — it only logs out-of-band changes for visibility between
// runs, the same role the teacher's handlers play for a single apply.
type Watcher struct {
	mu   sync.Mutex
	w    *fsnotify.Watcher
	dirs map[string]bool
	log  *telemetry.Logger
}

// NewWatcher returns a Watcher that will log through base (nil is
// permitted).
func NewWatcher(base *telemetry.Logger) *Watcher {
	return &Watcher{dirs: make(map[string]bool), log: base}
}

func (w *Watcher) Name() string { return "file" }

// Watch registers path's parent directory to be watched once Prefetch
// starts the underlying fsnotify.Watcher.
func (w *Watcher) Watch(path string) {
	dir := parentDir(path)
	if dir == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirs[dir] = true
}

// Prefetch starts the fsnotify watcher and subscribes every directory
// registered via Watch so far.
func (w *Watcher) Prefetch(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			if w.log != nil {
				w.log.WithField("dir", dir).WithError(err).Warn("file watcher: failed to add directory")
			}
		}
	}
	w.w = fw

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.w.Close()
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithField("event", ev.String()).Debug("file watcher: out-of-band change observed")
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Warn("file watcher: error")
			}
		}
	}
}
