// Package watch reports debounced changes of a single file.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounceTime = 100 * time.Millisecond

type Watcher struct {
	watcher      *fsnotify.Watcher
	filename     string
	debounceTime time.Duration

	mu    sync.Mutex
	timer *time.Timer

	updates   chan error
	done      chan struct{}
	closeOnce sync.Once
}

// File watches filename. The parent directory is watched so that editors replacing
// the file through a rename are still noticed. A burst of changes within
// debounceTime is reported once, as a nil value on Updates; watcher errors are
// reported as they happen.
func File(filename string, debounceTime time.Duration) (*Watcher, error) {
	if debounceTime <= 0 {
		debounceTime = DefaultDebounceTime
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	out := &Watcher{
		watcher:      watcher,
		filename:     abs,
		debounceTime: debounceTime,
		updates:      make(chan error, 1),
		done:         make(chan struct{}),
	}

	go out.process()

	return out, nil
}

func (w *Watcher) Updates() <-chan error {
	return w.updates
}

// Close stops the watcher. Updates is not closed; select on your own shutdown signal.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) notify(err error) {
	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.updates <- err:
	default:
		// an update is already pending
	}
}

func (w *Watcher) debounceUpdate() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounceTime, func() {
		w.notify(nil)
	})
}

func (w *Watcher) process() {
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.notify(err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.filename {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.debounceUpdate()
			}
		}
	}
}
