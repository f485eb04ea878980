// Package watcher waits for a lock file to disappear, using fsnotify with a
// polling fallback.
//
// The self-cleaning lock's contract is that the lock file is absent once the
// last holder releases, so "wait until the file is gone" is the cheapest way
// for a bystander to wait out all current holders without joining the lock
// queue itself.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the stat cadence in polling mode, and the safety-net
// re-check cadence even when fsnotify delivers events (deletions can be
// missed around watch setup).
const pollInterval = 500 * time.Millisecond

// WaitRemoved blocks until the file at path does not exist or ctx is done.
// Returns nil once the file is absent, or the context error.
func WaitRemoved(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, polling", "error", err)
		return pollRemoved(ctx, abs)
	}
	defer fsw.Close()

	// Watch the parent: a watch on the file itself dies with the file, and
	// the file may already be gone.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		slog.Debug("cannot watch directory, polling", "dir", filepath.Dir(abs), "error", err)
		fsw.Close()
		return pollRemoved(ctx, abs)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if gone, err := absent(abs); err != nil {
			return err
		} else if gone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-fsw.Events:
			// Only removals and renames of the watched name matter, but a
			// re-check on any event for it is harmless.
			if ev.Name != abs {
				continue
			}
		case err := <-fsw.Errors:
			slog.Debug("watch error, polling", "error", err)
			return pollRemoved(ctx, abs)
		case <-ticker.C:
		}
	}
}

// pollRemoved stats the path on a fixed cadence.
func pollRemoved(ctx context.Context, path string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if gone, err := absent(path); err != nil {
			return err
		} else if gone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// absent reports whether nothing exists at path.
func absent(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, err
}
