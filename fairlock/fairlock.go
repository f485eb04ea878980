// Package fairlock provides shared/exclusive file locking with starvation
// resistance and a point-in-time contention probe, built on two adjacent
// byte ranges of a single lock file.
//
// The first byte of the file is the preparation range (Pre) and the second
// the primary range (Prim). A holder rests only on Prim; Pre is taken
// transiently on the way in. Because the OS queues waiters per range in
// arrival order, a blocked exclusive acquirer parks on Pre and every later
// acquirer — shared or exclusive — must queue behind it before it can reach
// Prim, so a stream of shared lockers cannot starve an exclusive waiter.
//
// Holding Prim, a caller can probe Pre without blocking: if Pre is
// unavailable, someone is in the entry queue with an incompatible request.
// The probe never touches Prim, so the protected resource stays guarded
// throughout. The probe is a snapshot — it reports contention at one
// instant and promises nothing about what a later probe will see.
//
// Pre is always acquired before Prim and never waited on while Prim is
// held (the probe attempt is non-blocking), so no wait cycle can form.
//
// A Lock handle is owned by one goroutine at a time; it is not re-entrant
// and not safe for concurrent use.
package fairlock

import (
	"errors"
	"fmt"
	"os"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/internal/flock"
)

// ///////////////////////////////////////////////
// Byte Ranges
// ///////////////////////////////////////////////

// Lock ranges within the first page of the lock file. Pre and Prim must be
// adjacent and non-overlapping so the OS treats them as independent queues.
const (
	preOff   = 0
	primOff  = 1
	rangeLen = 1

	// minSize is the smallest lock file Open leaves behind. Some platforms
	// refuse to range-lock beyond the end of an empty file, so the file is
	// padded to cover both ranges. The bytes themselves are never read.
	minSize = 2
)

// ErrAlreadyHeld reports a protocol misuse: Lock or TryLock on a handle that
// is already in the holding state.
var ErrAlreadyHeld = errors.New("fairlock: lock already held on this handle")

// ///////////////////////////////////////////////
// Lock
// ///////////////////////////////////////////////

// Lock is a handle on a lock file. A handle is either unlocked or holding a
// shared/exclusive lock on the primary range; acquisition states are never
// visible to the caller.
type Lock struct {
	f    *os.File
	held bool
	typ  lockgate.Type
}

// Open binds a handle to the lock file at path, creating it if necessary and
// padding it to cover the lock ranges. The file's identity is captured at
// open time; fairlock files are expected to be stable, unlike the ephemeral
// variant's.
func Open(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat lock file: %w", err)
	}
	// Extend, never shrink: the content is meaningless but other handles may
	// already hold range locks on it.
	if st.Size() < minSize {
		if err := f.Truncate(minSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("pad lock file: %w", err)
		}
	}
	return &Lock{f: f}, nil
}

// Path returns the lock file path the handle was opened on.
func (l *Lock) Path() string { return l.f.Name() }

// Type returns the held lock type. Only meaningful while [Lock.Held] is true.
func (l *Lock) Type() lockgate.Type { return l.typ }

// Held reports whether the handle currently holds the primary range.
func (l *Lock) Held() bool { return l.held }

// ///////////////////////////////////////////////
// Acquisition
// ///////////////////////////////////////////////

// Lock blocks until a lock of type t is held. The handle must be unlocked.
//
// The acquisition passes through the preparation range first: wait for Pre,
// wait for Prim, release Pre. Waiting on Pre is what lines this caller up
// behind any exclusive acquirer already in the entry queue.
func (l *Lock) Lock(t lockgate.Type) error {
	if l.held {
		return ErrAlreadyHeld
	}
	if err := flock.LockRange(l.f, t, preOff, rangeLen); err != nil {
		return err
	}
	if err := flock.LockRange(l.f, t, primOff, rangeLen); err != nil {
		return l.unwind(err, true, false)
	}
	if err := flock.UnlockRange(l.f, preOff, rangeLen); err != nil {
		return l.unwind(err, true, true)
	}
	l.held, l.typ = true, t
	return nil
}

// TryLock attempts to acquire a lock of type t without blocking. Returns
// [lockgate.ErrWouldBlock] if either range is contended; the handle is left
// unlocked with nothing held.
func (l *Lock) TryLock(t lockgate.Type) error {
	if l.held {
		return ErrAlreadyHeld
	}
	if err := flock.TryLockRange(l.f, t, preOff, rangeLen); err != nil {
		return err
	}
	if err := flock.TryLockRange(l.f, t, primOff, rangeLen); err != nil {
		return l.unwind(err, true, false)
	}
	if err := flock.UnlockRange(l.f, preOff, rangeLen); err != nil {
		return l.unwind(err, true, true)
	}
	l.held, l.typ = true, t
	return nil
}

// unwind releases whichever ranges an acquisition had taken before failing,
// so no partial-lock state survives an error. The original failure is
// returned; release failures on an already-failing path are secondary.
func (l *Lock) unwind(cause error, pre, prim bool) error {
	if prim {
		_ = flock.UnlockRange(l.f, primOff, rangeLen)
	}
	if pre {
		_ = flock.UnlockRange(l.f, preOff, rangeLen)
	}
	return cause
}

// Unlock releases the held lock. Returns [lockgate.ErrNotHeld] if the handle
// is unlocked.
func (l *Lock) Unlock() error {
	if !l.held {
		return lockgate.ErrNotHeld
	}
	if err := flock.UnlockRange(l.f, primOff, rangeLen); err != nil {
		return err
	}
	l.held = false
	return nil
}

// ///////////////////////////////////////////////
// Contention Probe
// ///////////////////////////////////////////////

// Contended reports whether another party is currently waiting to acquire a
// lock incompatible with the one this handle holds. The handle must be
// holding; the primary range is untouched either way.
//
// The probe tries Pre non-blocking with the held type. Failure means some
// acquirer is parked on (or racing through) Pre with an incompatible type.
// Success proves only that this instant was quiet; it is not a liveness
// guarantee.
func (l *Lock) Contended() (bool, error) {
	if !l.held {
		return false, lockgate.ErrNotHeld
	}
	err := flock.TryLockRange(l.f, l.typ, preOff, rangeLen)
	if errors.Is(err, lockgate.ErrWouldBlock) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if err := flock.UnlockRange(l.f, preOff, rangeLen); err != nil {
		return false, err
	}
	return false, nil
}

// ///////////////////////////////////////////////
// Close
// ///////////////////////////////////////////////

// Close releases any held lock and closes the underlying file. The handle
// must not be used afterwards.
func (l *Lock) Close() error {
	if l.held {
		// Best effort; closing the handle drops the range lock regardless.
		_ = flock.UnlockRange(l.f, primOff, rangeLen)
		l.held = false
	}
	return l.f.Close()
}
