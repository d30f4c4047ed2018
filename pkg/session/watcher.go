package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is called with the freshly decoded session after the
// watched file changes on disk.
type ReloadCallback func(*Session)

// Watcher monitors the session file so a bundle re-captured out of band
// (after a second-factor refresh, for example) is picked up by a running
// daemon without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *FileStore
	onReload ReloadCallback
	debounce time.Duration
	done     chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the store's file. Writes are debounced
// because editors and atomic renames produce event bursts.
func NewWatcher(store *FileStore, onReload ReloadCallback) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("session: create watcher: %w", err)
	}
	return &Watcher{
		watcher:  w,
		store:    store,
		onReload: onReload,
		debounce: 200 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched, not the file
// itself, so atomic-rename saves are seen.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("session: watch %s: %w", dir, err)
	}

	go w.eventLoop()

	log.Debug().
		Str("path", w.store.Path()).
		Msg("Session watcher started")

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) eventLoop() {
	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Session watcher error")
		}
	}
}

// scheduleReload debounces the reload so a burst of events produces one
// callback with the settled file contents.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		sess, err := w.store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("Session file changed but could not be reloaded")
			return
		}
		log.Info().
			Time("issued_at", sess.IssuedAt).
			Msg("Session reloaded from disk")
		if w.onReload != nil {
			w.onReload(sess)
		}
	})
}
