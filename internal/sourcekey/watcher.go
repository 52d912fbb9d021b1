package sourcekey

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Change reports the keys that appeared in or vanished from one file. The
// dropped keys are the tracks the next module reload will orphan.
type Change struct {
	File    string     `json:"file"`
	Added   []CallSite `json:"added,omitempty"`
	Dropped []CallSite `json:"dropped,omitempty"`
}

// Empty reports whether the change carries no keys.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Dropped) == 0
}

// Watcher keeps the call sites of a source tree current as files change.
type Watcher struct {
	root  string
	ext   *Extractor
	fsw   *fsnotify.Watcher
	known map[string][]CallSite
}

// NewWatcher scans root and prepares to watch it.
func NewWatcher(ctx context.Context, root string, ext *Extractor) (*Watcher, error) {
	if ext == nil {
		ext = NewExtractor()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:  root,
		ext:   ext,
		fsw:   fsw,
		known: make(map[string][]CallSite),
	}
	if err := w.scan(ctx); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) scan(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if !isGoFile(path) {
			return nil
		}
		sites, err := w.ext.ExtractFile(ctx, w.root, path)
		if err != nil {
			slog.Warn("skipping unparsable file", slog.String("file", path), slog.Any("error", err))
			return nil
		}
		w.known[relPath(w.root, path)] = sites
		return nil
	})
}

// Sites returns every known call site ordered by file and line.
func (w *Watcher) Sites() []CallSite {
	var all []CallSite
	for _, file := range slices.Sorted(maps.Keys(w.known)) {
		all = append(all, w.known[file]...)
	}
	return all
}

// Run delivers a Change to fn for every file event that adds or drops
// keys, until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && !isGoFile(ev.Name) {
				if err := w.fsw.Add(ev.Name); err == nil {
					slog.Debug("watching new directory", slog.String("dir", ev.Name))
				}
				continue
			}
			if !isGoFile(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			var c Change
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				c = w.forget(ev.Name)
			} else {
				var err error
				c, err = w.refresh(ctx, ev.Name)
				if err != nil {
					slog.Warn("re-extract failed", slog.String("file", ev.Name), slog.Any("error", err))
					continue
				}
			}
			if !c.Empty() {
				fn(c)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.Any("error", err))
		}
	}
}

// refresh re-extracts path and diffs it against the known sites.
func (w *Watcher) refresh(ctx context.Context, path string) (Change, error) {
	sites, err := w.ext.ExtractFile(ctx, w.root, path)
	if err != nil {
		return Change{}, err
	}
	file := relPath(w.root, path)
	c := diff(file, w.known[file], sites)
	w.known[file] = sites
	return c, nil
}

func (w *Watcher) forget(path string) Change {
	file := relPath(w.root, path)
	c := diff(file, w.known[file], nil)
	delete(w.known, file)
	return c
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func diff(file string, before, after []CallSite) Change {
	c := Change{File: file}
	had := make(map[string]bool, len(before))
	for _, s := range before {
		had[s.Key] = true
	}
	has := make(map[string]bool, len(after))
	for _, s := range after {
		has[s.Key] = true
		if !had[s.Key] {
			c.Added = append(c.Added, s)
		}
	}
	for _, s := range before {
		if !has[s.Key] {
			c.Dropped = append(c.Dropped, s)
		}
	}
	return c
}
