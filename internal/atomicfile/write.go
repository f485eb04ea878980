// Package atomicfile provides crash-safe file writing using temporary files
// and atomic renames, plus directory fsync for callers that need the rename
// itself to be durable.

package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically writes data to path: create a temp file in the target's
// directory, write and sync it, fix permissions, and rename it over the
// target. Readers see either the old content or the new, never a partial
// write. A failure at any step removes the temp file.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// SyncDir fsyncs the directory at dir so that renames inside it survive a
// crash. On platforms where directories cannot be synced (Windows), this is
// a no-op: the containing volume's metadata journaling covers renames there.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !isSyncUnsupported(err) {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
