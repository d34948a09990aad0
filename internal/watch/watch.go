// Package watch turns fsnotify events on a set of directories into debounced
// callbacks.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDelay groups bursts of writes (editors save in several steps).
const DefaultDelay = 250 * time.Millisecond

// Watcher calls OnChange once per burst of file events under its roots.
type Watcher struct {
	fsw      *fsnotify.Watcher
	delay    time.Duration
	onChange func(paths []string)
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	done    chan struct{}
}

// New watches every directory below roots. Missing roots are skipped.
func New(roots []string, delay time.Duration, onChange func(paths []string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		delay:    delay,
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("watch root missing", zap.String("root", root))
		return nil
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	return nil
}

// Run forwards events until ctx ends, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Done is closed once Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) handle(evt fsnotify.Event) {
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", evt.Name), zap.Error(err))
			}
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[evt.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.fire)
		return
	}
	w.timer.Reset(w.delay)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()
	if len(paths) > 0 && w.onChange != nil {
		w.onChange(paths)
	}
}
