// Package dircommit replaces a directory atomically under an ephemeral
// exclusive lock.
//
// The guarded directory may not exist yet — the lock file lives next to it
// (<target>.lock), so fresh builds and replacements go through the same
// protocol. Replacement stages the new content in a sibling scratch
// directory, then swaps it in with two renames: the old directory is moved
// aside, the scratch directory is moved to the target, and the displaced
// directory is deleted. A failure before the final rename leaves the target
// untouched; a crash between the renames leaves a *.old.* sibling that the
// next replacement sweeps up.
package dircommit

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/elock"
	"tools.zach/dev/lockgate/internal/atomicfile"
	"tools.zach/dev/lockgate/internal/paths"
)

// ///////////////////////////////////////////////
// Guard
// ///////////////////////////////////////////////

// Guard holds the ephemeral lock for a guarded directory. Readers take a
// Shared guard around consuming the directory; Replace takes an Exclusive
// one internally.
type Guard struct {
	target string
	lock   *elock.Lock
}

// LockDir acquires a lock of type t on the directory at target, blocking
// until granted. The directory itself need not exist.
func LockDir(target string, t lockgate.Type) (*Guard, error) {
	lock, err := elock.Acquire(paths.LockPathFor(target), t)
	if err != nil {
		return nil, err
	}
	return &Guard{target: target, lock: lock}, nil
}

// TryLockDir is the non-blocking variant of [LockDir]; it returns
// [lockgate.ErrWouldBlock] if the directory is contended.
func TryLockDir(target string, t lockgate.Type) (*Guard, error) {
	lock, err := elock.TryAcquire(paths.LockPathFor(target), t)
	if err != nil {
		return nil, err
	}
	return &Guard{target: target, lock: lock}, nil
}

// Path returns the guarded directory path.
func (g *Guard) Path() string { return g.target }

// Type returns the held lock type.
func (g *Guard) Type() lockgate.Type { return g.lock.Type() }

// Release drops the guard. The lock file disappears with the last holder.
func (g *Guard) Release() error { return g.lock.Release() }

// ///////////////////////////////////////////////
// Replace
// ///////////////////////////////////////////////

// Replace atomically replaces the directory at target with content produced
// by build, which is handed an empty scratch directory to fill. The swap
// happens under an exclusive guard; concurrent readers holding shared guards
// never observe a partially built directory. If target does not exist yet,
// the scratch directory simply becomes it.
func Replace(target string, build func(scratch string) error) error {
	guard, err := LockDir(target, lockgate.Exclusive)
	if err != nil {
		return err
	}
	defer guard.Release()

	sweepLeftovers(target)

	scratch := paths.ScratchName(target, paths.TempSuffix)
	if err := os.Mkdir(scratch, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	var committed bool
	defer func() {
		if !committed {
			os.RemoveAll(scratch)
		}
	}()

	if err := build(scratch); err != nil {
		return err
	}

	parent := filepath.Dir(target)
	switch _, err := os.Stat(target); {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Rename(scratch, target); err != nil {
			return fmt.Errorf("install dir: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat target: %w", err)
	default:
		old := paths.ScratchName(target, paths.OldSuffix)
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("displace old dir: %w", err)
		}
		if err := os.Rename(scratch, target); err != nil {
			// Put the old directory back; the target must not be left absent.
			if restoreErr := os.Rename(old, target); restoreErr != nil {
				return errors.Join(
					fmt.Errorf("install dir: %w", err),
					fmt.Errorf("restore old dir: %w", restoreErr),
				)
			}
			return fmt.Errorf("install dir: %w", err)
		}
		committed = true
		// The swap is done; a stuck displaced dir is debris for the next
		// replacement's sweep, not a failure of this one.
		if err := os.RemoveAll(old); err != nil {
			slog.Debug("dircommit: displaced dir removal failed", "dir", old, "error", err)
		}
	}
	committed = true
	return atomicfile.SyncDir(parent)
}

// Remove deletes the directory at target under an exclusive guard.
// Removing a directory that does not exist is not an error.
func Remove(target string) error {
	guard, err := LockDir(target, lockgate.Exclusive)
	if err != nil {
		return err
	}
	defer guard.Release()
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}
	return nil
}

// sweepLeftovers deletes scratch and displaced directories a crashed
// replacement may have left next to target. Safe because the caller holds
// the exclusive guard; best effort because leftovers are harmless.
func sweepLeftovers(target string) {
	parent := filepath.Dir(target)
	base := filepath.Base(target)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, base+paths.TempSuffix+".") ||
			strings.HasPrefix(name, base+paths.OldSuffix+".") {
			os.RemoveAll(filepath.Join(parent, name))
		}
	}
}
