package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// OnReload is called after a successful hot-reload.
type OnReload func(old, new *Config)

// Watcher monitors the config file for changes and reloads automatically.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	filePath  string
	callbacks []OnReload
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the given config file for changes. When the file is
// modified, the config is re-loaded, validated, and stored in the global
// atomic pointer. Registered callbacks receive the old and new values.
func Watch(filePath string) (*Watcher, error) {
	if filePath == "" {
		return nil, fmt.Errorf("config watcher: file path must not be empty")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("config watcher: resolving path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: creating fsnotify watcher: %w", err)
	}

	// Editors save atomically (write tmp + rename), so watch the directory.
	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watching directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		filePath:  absPath,
		done:      make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

// OnChange registers a callback that will be invoked after each successful
// config reload. It is safe to call from multiple goroutines.
func (w *Watcher) OnChange(fn OnReload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	old := Get()

	newCfg, err := Load(w.filePath)
	if err != nil {
		log.Error().Err(err).Str("path", w.filePath).Msg("config reload failed, keeping previous config")
		return
	}

	log.Info().Str("path", w.filePath).Msg("config reloaded")

	w.mu.Lock()
	cbs := make([]OnReload, len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("config reload callback panicked")
				}
			}()
			cb(old, newCfg)
		}()
	}
}
