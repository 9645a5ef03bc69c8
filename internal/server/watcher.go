package server

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// watcher wraps fsnotify with recursive directory registration and
// debouncing: rapid editor save bursts collapse into one change batch.
type watcher struct {
	fs      *fsnotify.Watcher
	root    string
	exclude []string // absolute directories never watched or reported
	changes chan []string
	logger  *slog.Logger
}

// newWatcher watches root recursively. exclude lists absolute directories
// whose contents are never watched or reported; the build output and cache
// directories go here so the builder's own writes do not retrigger it.
func newWatcher(root string, exclude []string, debounce time.Duration, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{fs: fsw, root: root, exclude: exclude, changes: make(chan []string, 1), logger: logger}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.loop(debounce)
	return w, nil
}

// addRecursive registers root and every non-hidden subdirectory.
func (w *watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
			return filepath.SkipDir
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// excluded reports whether path falls under one of the excluded directories.
func (w *watcher) excluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.exclude {
		if dir == "" {
			continue
		}
		rel, rerr := filepath.Rel(dir, abs)
		if rerr == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// loop collects events until the debounce window closes, then emits one
// batch of source-relative changed paths.
func (w *watcher) loop(debounce time.Duration) {
	pending := sets.New[string]()
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				if pending.Len() > 0 {
					w.changes <- sets.SortedValues(pending)
				}
				close(w.changes)
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories must be registered before anything inside
			// them changes.
			if event.Op&fsnotify.Create != 0 {
				_ = w.addRecursive(event.Name)
			}
			if w.excluded(event.Name) {
				continue
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if base := filepath.Base(rel); strings.HasPrefix(base, ".") {
				continue
			}
			pending.Add(filepath.ToSlash(rel))
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				continue
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timerC:
			if pending.Len() > 0 {
				batch := sets.SortedValues(pending)
				pending = sets.New[string]()
				select {
				case w.changes <- batch:
				default:
					// Drop the batch if a rebuild is still consuming the
					// previous one; the next event re-triggers.
				}
			}
			timer = nil
			timerC = nil
		}
	}
}

func (w *watcher) close() {
	_ = w.fs.Close()
}
