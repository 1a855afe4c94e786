package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher holds the live config behind an atomic pointer and refreshes it on
// SIGHUP or when the config file changes on disk. Readers call Current()
// without locking; a failed reload logs the error and leaves the prior
// config in place.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	log     *zap.Logger
	sigCh   chan os.Signal
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher builds a Watcher already holding initial as the current config.
// fsnotify setup is attempted but not required: if it fails (e.g. the config
// directory doesn't exist yet), Watch still serves SIGHUP-triggered reloads.
func NewWatcher(path string, initial *Config, log *zap.Logger) *Watcher {
	w := &Watcher{path: path, log: log, sigCh: make(chan os.Signal, 1), done: make(chan struct{})}
	w.current.Store(initial)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, relying on SIGHUP only", zap.Error(err))
		return w
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		log.Warn("fsnotify could not watch config directory, relying on SIGHUP only",
			zap.String("path", path), zap.Error(err))
		fsw.Close()
		return w
	}
	w.fsw = fsw
	return w
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Watch starts listening for SIGHUP and config-file writes, reloading on
// each, until Stop is called. Runs in the caller's goroutine — call with go.
func (w *Watcher) Watch() {
	signal.Notify(w.sigCh, syscall.SIGHUP)
	defer signal.Stop(w.sigCh)

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	if w.fsw != nil {
		fsEvents = w.fsw.Events
		fsErrors = w.fsw.Errors
		defer w.fsw.Close()
	}

	for {
		select {
		case <-w.sigCh:
			w.reload()
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(w.path) &&
				(ev.Op&(fsnotify.Write|fsnotify.Create)) != 0 {
				w.reload()
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.log.Warn("fsnotify watch error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Stop ends the Watch loop.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) reload() {
	w.log.Info("reloading config", zap.String("path", w.path))
	next, err := Load(w.path)
	if err != nil {
		w.log.Error("config hot-reload failed, retaining current config", zap.Error(err))
		return
	}
	w.current.Store(next)
	w.log.Info("config hot-reload succeeded")
}
