// Package watch triggers corpus reloads when files under the corpus root
// change. Bursts of events are collapsed into one reload per quiet period.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/medgraph/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

type Options struct {
	// Match selects the slash-separated relative paths that trigger a reload.
	// Nil matches every file.
	Match    func(rel string) bool
	Debounce time.Duration
	Log      *logging.Logger
}

// Watcher runs reload after matching files under root change.
type Watcher struct {
	root   string
	reload func(ctx context.Context) error
	opts   Options
	fsw    *fsnotify.Watcher
}

func New(root string, reload func(ctx context.Context) error, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Match == nil {
		opts.Match = func(string) bool { return true }
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{root: abs, reload: reload, opts: opts, fsw: fsw}
	if err := w.addRecursive(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every non-hidden directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run blocks until ctx is done, reloading after each burst of changes.
// Reload errors are logged; the watcher keeps running.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }() // safe to ignore

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	pending := 0

	w.opts.Log.Info("watching corpus", "root", w.root, "debounce", w.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(ev) {
				continue
			}
			pending++
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Log.Warn("watch error", "error", err)

		case <-timer.C:
			w.opts.Log.Info("corpus changed, reloading", "events", pending)
			pending = 0
			if err := w.reload(ctx); err != nil {
				w.opts.Log.Error("reload after change failed", "error", err)
			}
		}
	}
}

// handle reports whether ev should schedule a reload. New directories are
// added to the watch set and schedule one too, since files may already have
// been written into them.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.opts.Log.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return true
		}
	}
	if !w.opts.Match(rel) {
		return false
	}
	w.opts.Log.Debug("corpus file changed", "path", rel, "op", ev.Op.String())
	return true
}
