// Package elock provides a self-cleaning lock keyed purely by a file's
// existence: the lock file is present while someone holds or wants the lock
// and is removed by whichever releaser proves itself last.
//
// Acquisition is a create/lock/verify loop. The path is opened (creating an
// empty file if needed), the handle is locked, and the path is then reopened
// and compared by file identity against the locked handle. A mismatch means
// another process deleted and recreated the file between the open and the
// lock — the only state this protocol trusts is the identity check, so the
// loop simply starts over. The file's content is never read and never
// meaningful; acquisition truncates it as a matter of convention.
//
// Release of an exclusive lock unlinks the path before dropping the lock —
// sole ownership makes that safe. Release of a shared lock drops the lock,
// then opportunistically reopens the path, tries a non-blocking exclusive
// lock, re-verifies identity, and unlinks only if all of that succeeds; any
// failure means another live holder or a racing cleaner exists and cleanup
// is abandoned silently. At most one party can win the exclusive probe, so
// at most one party unlinks.
//
// A process that crashes while holding a lock leaks the lock file. That is
// accepted: the next acquire/release cycle through the same path removes it.
//
// Handles within one process are serialized by internal/lockset, so two
// goroutines acquiring the same path behave like two processes would.
package elock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/internal/fileid"
	"tools.zach/dev/lockgate/internal/lockset"
	"tools.zach/dev/lockgate/internal/logger"
)

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Options tunes an acquisition. The zero value is the default behavior.
type Options struct {
	// MaxRetries caps how many times the create/lock/verify loop restarts
	// after losing an identity race. Zero means retry indefinitely; the race
	// window is tiny and a retry only loses to another party's progress.
	// When the cap is hit, [lockgate.ErrRetryExhausted] is returned.
	MaxRetries int
}

// ///////////////////////////////////////////////
// Acquisition
// ///////////////////////////////////////////////

// Acquire blocks until a lock of type t is held on the file at path,
// creating the lock file if it does not exist.
func Acquire(path string, t lockgate.Type) (*Lock, error) {
	return AcquireWith(path, t, Options{})
}

// TryAcquire attempts to acquire without blocking. If the lock is contended
// it returns [lockgate.ErrWouldBlock] immediately — the identity-race retry
// loop does not apply to contention, only to replaced files.
func TryAcquire(path string, t lockgate.Type) (*Lock, error) {
	return acquire(path, t, false, Options{})
}

// AcquireWith is [Acquire] with explicit options.
func AcquireWith(path string, t lockgate.Type, opts Options) (*Lock, error) {
	return acquire(path, t, true, opts)
}

// openOrCreate opens the lock file read-write, creating it if absent and
// truncating it to empty. Truncation is a no-op on the invariant content
// (always empty) and discards whatever a crashed writer may have leaked.
func openOrCreate(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

// openExisting opens the lock file read-write without creating it.
func openExisting(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// acquire runs the create/lock/verify loop.
func acquire(path string, t lockgate.Type, block bool, opts Options) (*Lock, error) {
	f, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if opts.MaxRetries > 0 && attempt >= opts.MaxRetries {
			f.Close()
			return nil, fmt.Errorf("acquire %s: %w", path, lockgate.ErrRetryExhausted)
		}

		var held *lockset.Held
		if block {
			held, err = lockset.Lock(f, t)
		} else {
			held, err = lockset.TryLock(f, t)
		}
		if err != nil {
			// Contention (non-blocking) or an I/O failure; either way the
			// whole operation stops here holding nothing.
			f.Close()
			return nil, err
		}

		// The lock is held, but possibly on a corpse: another process may
		// have unlinked and recreated the path between our open and our
		// lock. Reopen the path and compare identities.
		cur, err := openExisting(path)
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted out from under us; recreate and go again.
			_ = held.Unlock()
			f.Close()
			if f, err = openOrCreate(path); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			_ = held.Unlock()
			f.Close()
			return nil, fmt.Errorf("reopen lock file: %w", err)
		}

		same, err := fileid.SameFile(f, cur)
		cur.Close()
		if err != nil {
			_ = held.Unlock()
			f.Close()
			return nil, err
		}
		if same {
			// The locked handle is the current file at the path. Well-behaved
			// parties only unlink under an exclusive lock they verified the
			// same way, so it stays put while we hold it.
			return &Lock{path: path, f: f, held: held, typ: t}, nil
		}

		// Replaced between open and lock; restart from a fresh open.
		logger.Trace(slog.Default(), "lock file replaced, retrying", "path", path, "attempt", attempt)
		_ = held.Unlock()
		f.Close()
		if f, err = openOrCreate(path); err != nil {
			return nil, err
		}
	}
}

// ///////////////////////////////////////////////
// Lock
// ///////////////////////////////////////////////

// Lock is a held ephemeral lock. Release it exactly once.
type Lock struct {
	path string
	f    *os.File
	held *lockset.Held
	typ  lockgate.Type
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Type returns the currently held lock type.
func (l *Lock) Type() lockgate.Type { return l.typ }

// Release drops the lock and removes the lock file if this holder is
// provably the last one. Returns [lockgate.ErrNotHeld] on a second call.
func (l *Lock) Release() error {
	if l.f == nil {
		return lockgate.ErrNotHeld
	}
	f, held := l.f, l.held
	l.f, l.held = nil, nil

	if l.typ.IsExclusive() {
		// Sole ownership: nobody else can hold or be verifying this file,
		// so unlink first, then drop the lock.
		rmErr := os.Remove(l.path)
		if rmErr != nil && errors.Is(rmErr, fs.ErrNotExist) {
			rmErr = nil
		}
		unlockErr := held.Unlock()
		closeErr := f.Close()
		return errors.Join(rmErr, unlockErr, closeErr)
	}

	// Shared: drop our lock first, then see if we happen to be the last.
	unlockErr := held.Unlock()
	closeErr := f.Close()
	l.tryCleanup()
	return errors.Join(unlockErr, closeErr)
}

// tryCleanup removes the lock file if this process can prove, via a
// non-blocking exclusive lock on the current file at the path, that no other
// holder exists at this instant. Every failure means someone else is alive
// (or already cleaning) and is deliberately swallowed — correctness only
// needs at most one cleaner, which the exclusive probe guarantees.
func (l *Lock) tryCleanup() {
	f, err := openExisting(l.path)
	if err != nil {
		// Already gone, or unreadable; either way not ours to clean.
		return
	}
	defer f.Close()

	held, err := lockset.TryLock(f, lockgate.Exclusive)
	if err != nil {
		if !errors.Is(err, lockgate.ErrWouldBlock) {
			slog.Debug("elock: cleanup probe failed", "path", l.path, "error", err)
		}
		return
	}
	defer held.Unlock()

	// The exclusive lock could be on a replaced file; only unlink if the
	// path still names the file we locked.
	cur, err := openExisting(l.path)
	if err != nil {
		return
	}
	same, err := fileid.SameFile(f, cur)
	cur.Close()
	if err != nil || !same {
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("elock: cleanup unlink failed", "path", l.path, "error", err)
	}
}
