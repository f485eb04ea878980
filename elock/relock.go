// In-place lock type changes. A held lock can be upgraded to exclusive or
// downgraded to shared without giving up its handle, but not atomically:
// the old lock is dropped before the new one is taken, and another process
// may win the file in between. The identity re-check catches that, and the
// loser's handle is invalidated rather than left in a lying state.

package elock

import (
	"errors"
	"fmt"
	"io/fs"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/internal/fileid"
	"tools.zach/dev/lockgate/internal/lockset"
)

// ErrReplaced reports that the lock file was replaced or removed while the
// lock was being upgraded or downgraded. The handle is released; the caller
// must acquire from scratch.
var ErrReplaced = errors.New("elock: lock file replaced during relock")

// Upgrade converts a shared lock to exclusive, blocking until every other
// shared holder releases. A no-op on an already-exclusive lock. On error the
// lock is no longer held.
func (l *Lock) Upgrade() error {
	if l.f == nil {
		return lockgate.ErrNotHeld
	}
	if l.typ.IsExclusive() {
		return nil
	}
	return l.relock(lockgate.Exclusive)
}

// Downgrade converts an exclusive lock to shared, letting other shared
// acquirers in. A no-op on an already-shared lock. On error the lock is no
// longer held.
func (l *Lock) Downgrade() error {
	if l.f == nil {
		return lockgate.ErrNotHeld
	}
	if !l.typ.IsExclusive() {
		return nil
	}
	return l.relock(lockgate.Shared)
}

// relock swaps the held lock type on the same handle: release, re-lock with
// the new type, then verify the path still names the locked file. Any
// failure invalidates the handle so the caller cannot mistake a lost lock
// for a held one.
func (l *Lock) relock(t lockgate.Type) error {
	if err := l.held.Unlock(); err != nil {
		l.invalidate()
		return err
	}
	l.held = nil

	held, err := lockset.Lock(l.f, t)
	if err != nil {
		l.invalidate()
		return fmt.Errorf("relock %s: %w", l.path, err)
	}

	cur, err := openExisting(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		_ = held.Unlock()
		l.invalidate()
		return ErrReplaced
	}
	if err != nil {
		_ = held.Unlock()
		l.invalidate()
		return fmt.Errorf("reopen lock file: %w", err)
	}
	same, err := fileid.SameFile(l.f, cur)
	cur.Close()
	if err != nil {
		_ = held.Unlock()
		l.invalidate()
		return err
	}
	if !same {
		_ = held.Unlock()
		l.invalidate()
		return ErrReplaced
	}

	l.held, l.typ = held, t
	return nil
}

// invalidate closes the handle and marks the lock released.
func (l *Lock) invalidate() {
	if l.f != nil {
		l.f.Close()
	}
	l.f, l.held = nil, nil
}
