package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// OnReload is called after a successful hot-reload with the previous and the
// new config. Scope trees are rebuilt from here.
type OnReload func(old, new *Config)

// OnReloadError is called when a changed file fails to load. The previous
// config stays in effect.
type OnReloadError func(err error)

// Watcher monitors the config file for changes and reloads automatically.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	filePath  string
	debounce  time.Duration

	mu        sync.Mutex
	callbacks []OnReload
	onError   []OnReloadError

	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the given config file for changes. When the file is
// modified, the config is re-loaded, validated, and stored in the global
// atomic pointer, and registered callbacks run with the old and new values.
func Watch(filePath string) (*Watcher, error) {
	return WatchWithDebounce(filePath, DefaultDebounce)
}

// WatchWithDebounce is Watch with an explicit debounce interval.
func WatchWithDebounce(filePath string, debounce time.Duration) (*Watcher, error) {
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

	// Editors often save by writing a temp file and renaming it over the
	// original, so the directory is watched rather than the file.
	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watching directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		filePath:  absPath,
		debounce:  debounce,
		done:      make(chan struct{}),
	}

	go w.loop()

	log.Debug().Str("file", absPath).Dur("debounce", debounce).Msg("config watcher started")
	return w, nil
}

// OnChange registers a callback that will be invoked after each successful
// config reload. It is safe to call from multiple goroutines.
func (w *Watcher) OnChange(fn OnReload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// OnError registers a callback for failed reloads.
func (w *Watcher) OnError(fn OnReloadError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = append(w.onError, fn)
}

// Close stops the watcher and releases resources. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("file", w.filePath).Msg("config watcher error")
		}
	}
}

// reload performs the actual config reload and notifies callbacks.
func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	old := Get()

	newCfg, err := Load(w.filePath)
	if err != nil {
		log.Error().Err(err).Str("file", w.filePath).Msg("config reload failed, keeping previous config")
		w.mu.Lock()
		errCbs := append([]OnReloadError(nil), w.onError...)
		w.mu.Unlock()
		for _, cb := range errCbs {
			cb(err)
		}
		return
	}

	log.Info().Str("file", w.filePath).Int("scopes", len(newCfg.Scopes)).Msg("config reloaded")

	w.mu.Lock()
	cbs := append([]OnReload(nil), w.callbacks...)
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
