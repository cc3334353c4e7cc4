// Package watcher reports debounced changes to the Home Assistant registry files.
package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of writes Home Assistant makes when
// it saves several registries together.
const DefaultDebounce = 2 * time.Second

// Config holds watcher options.
type Config struct {
	// Dir is the directory to watch, normally the .storage directory.
	Dir string

	// Files are the base names that trigger a change. Empty means any file.
	Files []string

	Debounce time.Duration
}

// Watcher sends one signal per burst of changes to the watched files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfg       Config
	changes   chan struct{}
	errs      chan error
	done      chan struct{}
}

// New creates a watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		cfg:       cfg,
		changes:   make(chan struct{}, 1),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the directory and returns the change channel.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsWatcher.Add(w.cfg.Dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.cfg.Dir, err)
	}

	go w.loop()

	return w.changes, nil
}

// Errors delivers watch errors. Errors are dropped while one is pending.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop terminates the watcher. It must be called at most once.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}

		case <-w.done:
			return
		}
	}
}

// relevant reports whether the event touches a watched file. Home Assistant
// saves by writing a temp file and renaming it, which shows up as Create.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if len(w.cfg.Files) == 0 {
		return true
	}
	return slices.Contains(w.cfg.Files, filepath.Base(event.Name))
}
