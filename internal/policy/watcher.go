package policy

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"Terminal/internal/metrics"
	"Terminal/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher serves the lane table from a file and reloads it whenever the file changes.
// A reload that fails to parse or validate keeps the previous table in place.
type Watcher struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Table]
	fsw     *fsnotify.Watcher

	mu        sync.Mutex
	listeners []func(*Table)
	done      chan struct{}
}

// NewWatcher loads path and starts watching its directory.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	t.Version = 1
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create lane watcher: %w", err)
	}
	// Watch the directory: editors and config managers replace files by rename.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch lane dir: %w", err)
	}
	w := &Watcher{
		path:   filepath.Clean(path),
		logger: logger.With(zap.String("component", "lane_watcher")),
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	w.current.Store(t)
	go w.loop()
	return w, nil
}

// Resolve implements the lane resolver against the latest table.
func (w *Watcher) Resolve(lane string) model.LanePolicy {
	return w.current.Load().Resolve(lane)
}

// Table returns the table currently in effect.
func (w *Watcher) Table() *Table {
	return w.current.Load()
}

// OnReload registers fn to be called after each successful reload.
func (w *Watcher) OnReload(fn func(*Table)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("lane watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	t, err := LoadFile(w.path)
	if err != nil {
		metrics.LaneReloadsTotal.WithLabelValues("error").Inc()
		w.logger.Error("lane reload failed, keeping previous table", zap.Error(err))
		return
	}
	prev := w.current.Load()
	t.Version = prev.Version + 1
	w.current.Store(t)
	metrics.LaneReloadsTotal.WithLabelValues("ok").Inc()
	w.logger.Info("lane table reloaded",
		zap.Int64("version", t.Version),
		zap.Strings("lanes", t.Lanes()))

	w.mu.Lock()
	listeners := append([]func(*Table){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
}
