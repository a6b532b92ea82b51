// Package watch signals when Solidity sources change.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

type Config struct {
	Dirs     []string
	Debounce time.Duration
}

// Watcher coalesces bursts of source writes into single notifications.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dirs     []string
	debounce time.Duration
	onChange chan struct{}
	errs     chan error
	done     chan struct{}
}

func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		dirs:     cfg.Dirs,
		debounce: debounce,
		onChange: make(chan struct{}, 1),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start watches every directory below the configured roots.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for _, root := range w.dirs {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			return w.fsw.Add(path)
		})
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", root, err)
		}
	}
	go w.loop()
	return w.onChange, nil
}

// Errors reports watcher failures. Sends are dropped when nobody reads.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				w.addIfDir(event.Name)
			}
			if !relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
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

func (w *Watcher) addIfDir(path string) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		_ = w.fsw.Add(path)
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Ext(event.Name) == ".sol"
}
