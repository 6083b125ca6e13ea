package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/camkit/camserver/internal/logging"
)

// defaultDebounce covers editors that emit a burst of writes, or
// replace the file outright, when saving.
const defaultDebounce = 1500 * time.Millisecond

// FileWatcher reloads the runtime settings file after external edits
// settle. Write and create events reset a debounce timer; the reload
// callback fires once per settled burst.
type FileWatcher struct {
	path     string
	debounce time.Duration
	reload   func() error
	log      logging.Logger

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
}

// NewFileWatcher builds a watcher calling reload whenever path
// changes on disk.
func NewFileWatcher(path string, reload func() error) *FileWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		path:     path,
		debounce: defaultDebounce,
		reload:   reload,
		log:      logging.GetLogger("config"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins watching. The file must exist.
func (w *FileWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.log.Info("watching settings file", "path", w.path)
	go w.run()
	return nil
}

// Stop ends the watch. Safe to call before Start.
func (w *FileWatcher) Stop() error {
	w.cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *FileWatcher) run() {
	var timer *time.Timer
	var settled <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			settled = timer.C

		case <-settled:
			settled = nil
			if err := w.reload(); err != nil {
				w.log.Warn("settings reload failed", "error", err)
				continue
			}
			w.log.Info("settings reloaded from disk", "path", w.path)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", "error", err)
		}
	}
}
