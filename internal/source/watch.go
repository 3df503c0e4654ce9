package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the index current until ctx is canceled. Created and written
// files are re-indexed, removed and renamed ones dropped; new directories
// are watched as they appear. onChange, when non-nil, is called with each
// refreshed path.
func (ix *Index) Watch(ctx context.Context, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := ix.watchTree(w, ix.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watch error", slog.String("error", err.Error()))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			ix.handle(ctx, w, ev, onChange)
		}
	}
}

func (ix *Index) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, onChange func(string)) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !ix.ignored(ev.Name, true) {
				if err := ix.watchTree(w, ev.Name); err != nil {
					ix.logger.Warn("failed to watch directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
				}
			}
			return
		}
	}
	if !ix.wanted(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if err := ix.Refresh(ctx, ev.Name); err != nil {
		ix.logger.Warn("failed to refresh source", slog.String("path", ev.Name), slog.String("error", err.Error()))
		return
	}
	ix.logger.Debug("source refreshed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
	if onChange != nil {
		onChange(ev.Name)
	}
}

func (ix *Index) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != ix.root && ix.ignored(path, true) {
			return fs.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
