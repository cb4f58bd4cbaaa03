package main

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher calls onChange once per burst of writes to a single file.
// The parent directory is watched so editors that replace the file by rename
// are still seen.
type fileWatcher struct {
	w        *fsnotify.Watcher
	name     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

func watchFile(path string, debounce time.Duration, onChange func(), logger *slog.Logger) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	fw := &fileWatcher{
		w:        w,
		name:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.loop()

	return fw, nil
}

func (fw *fileWatcher) loop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != fw.name {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				fw.schedule()
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}

			fw.logger.Warn("file watcher error", "path", fw.name, "error", err)
		}
	}
}

func (fw *fileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}

	fw.timer = time.AfterFunc(fw.debounce, fw.onChange)
}

// Close stops watching. A pending callback is cancelled.
func (fw *fileWatcher) Close() error {
	close(fw.done)
	err := fw.w.Close()
	fw.wg.Wait()

	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()

	return err
}
