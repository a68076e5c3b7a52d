package control

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"conductor/debug"
)

// debounce coalesces the burst of fsnotify events a single editor save
// typically produces (write, then often a rename/remove/create cycle for
// atomic-replace editors) into one reload.
const debounce = 100 * time.Millisecond

// Watcher watches a configuration file's containing directory (not the
// file itself, so it survives editors that replace-via-rename) and invokes
// onChange, debounced, whenever the watched file is touched.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	stop     chan struct{}
}

// NewWatcher creates a Watcher for path. Call Run to start watching.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{watcher: fw, path: filepath.Clean(path), onChange: onChange, stop: make(chan struct{})}, nil
}

// Run watches until Close is called, debouncing bursts of events that name
// the watched file into a single onChange call.
func (w *Watcher) Run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			debug.Log(debug.Reload, "config watcher error: %v", err)

		case <-timerC:
			timerC = nil
			w.onChange()
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
