// Package lockset admits whole-file lock requests through an in-process
// FIFO readers-writer queue keyed by file identity before they reach the OS.
//
// OS advisory locks arbitrate between processes, but two handles to the same
// file inside one process need additional care: blocking OS calls from
// multiple goroutines would tie up threads without any fairness, and on some
// platforms same-process handles do not conflict at all. Each handle is
// therefore admitted in-process first — shared requests are granted together,
// exclusive requests alone, in arrival order — and only then takes the OS
// lock on its own handle. Bookkeeping for a file identity disappears when
// its last holder releases.
package lockset

import (
	"fmt"
	"os"
	"sync"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/internal/fileid"
	"tools.zach/dev/lockgate/internal/flock"
)

// ///////////////////////////////////////////////
// Set
// ///////////////////////////////////////////////

// Set tracks in-process admission state per file identity. The zero value is
// not usable; use [New]. Package-level [Lock] and [TryLock] share one
// process-wide Set, which is what cross-handle correctness requires;
// separate Sets only make sense in tests.
type Set struct {
	mu      sync.Mutex
	entries map[fileid.ID]*entry
}

// entry is the admission state for one file identity. An entry exists only
// while at least one holder or waiter references the identity.
type entry struct {
	// writer reports an admitted exclusive holder.
	writer bool
	// readers counts admitted shared holders.
	readers int
	// queue holds waiters in arrival order. Invariant: the queue is empty
	// unless the head is incompatible with the current holders; arrivals
	// behind a waiter never overtake it.
	queue []*waiter
}

type waiter struct {
	typ   lockgate.Type
	ready chan struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{entries: make(map[fileid.ID]*entry)}
}

// std is the process-wide set used by the package-level functions.
var std = New()

// Lock admits f in-process, then blocks until the OS grants a whole-file
// lock of type t on f.
func Lock(f *os.File, t lockgate.Type) (*Held, error) { return std.Lock(f, t) }

// TryLock is the non-blocking variant of [Lock]. Returns
// [lockgate.ErrWouldBlock] if either the in-process queue or the OS lock is
// contended; in that case nothing is held.
func TryLock(f *os.File, t lockgate.Type) (*Held, error) { return std.TryLock(f, t) }

// Lock admits f in-process, then blocks until the OS grants a whole-file
// lock of type t on f.
func (s *Set) Lock(f *os.File, t lockgate.Type) (*Held, error) {
	id, err := fileid.FromFile(f)
	if err != nil {
		return nil, err
	}
	if w := s.admit(id, t); w != nil {
		<-w.ready
	}
	// Admitted in-process; take the OS lock on our own handle. Shared
	// holders admitted together each hold a compatible OS lock, so this
	// blocks only on other processes.
	if err := flock.Lock(f, t); err != nil {
		s.release(id, t)
		return nil, err
	}
	return &Held{set: s, f: f, id: id, typ: t}, nil
}

// TryLock is the non-blocking variant of [Lock].
func (s *Set) TryLock(f *os.File, t lockgate.Type) (*Held, error) {
	id, err := fileid.FromFile(f)
	if err != nil {
		return nil, err
	}
	if !s.tryAdmit(id, t) {
		return nil, lockgate.ErrWouldBlock
	}
	if err := flock.TryLock(f, t); err != nil {
		s.release(id, t)
		return nil, err
	}
	return &Held{set: s, f: f, id: id, typ: t}, nil
}

// ///////////////////////////////////////////////
// Admission
// ///////////////////////////////////////////////

// compatible reports whether a request of type t may hold alongside the
// entry's current holders.
func (e *entry) compatible(t lockgate.Type) bool {
	if t.IsExclusive() {
		return !e.writer && e.readers == 0
	}
	return !e.writer
}

// grant records an admitted holder of type t.
func (e *entry) grant(t lockgate.Type) {
	if t.IsExclusive() {
		e.writer = true
	} else {
		e.readers++
	}
}

// admit grants the request immediately when it is compatible and no one is
// queued ahead of it; otherwise it returns a waiter whose ready channel is
// closed when the request is granted.
func (s *Set) admit(id fileid.ID, t lockgate.Type) *waiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e == nil {
		e = &entry{}
		s.entries[id] = e
	}
	if len(e.queue) == 0 && e.compatible(t) {
		e.grant(t)
		return nil
	}
	w := &waiter{typ: t, ready: make(chan struct{})}
	e.queue = append(e.queue, w)
	return w
}

// tryAdmit grants the request only if it can be granted immediately.
func (s *Set) tryAdmit(id fileid.ID, t lockgate.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e == nil {
		e = &entry{}
		s.entries[id] = e
	}
	if len(e.queue) > 0 || !e.compatible(t) {
		s.evict(id, e)
		return false
	}
	e.grant(t)
	return true
}

// release drops one admitted holder of type t and wakes whatever prefix of
// the queue is now compatible: a leading exclusive waiter alone, or every
// leading shared waiter.
func (s *Set) release(id fileid.ID, t lockgate.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	if e == nil {
		panic(fmt.Sprintf("lockset: release of unknown file identity %v", id))
	}
	if t.IsExclusive() {
		e.writer = false
	} else {
		e.readers--
	}
	for len(e.queue) > 0 && e.compatible(e.queue[0].typ) {
		w := e.queue[0]
		e.queue = e.queue[1:]
		e.grant(w.typ)
		close(w.ready)
	}
	s.evict(id, e)
}

// evict removes the entry once nothing references the identity. Identities
// are only stable while a handle is open, so stale entries must not outlive
// their holders.
func (s *Set) evict(id fileid.ID, e *entry) {
	if !e.writer && e.readers == 0 && len(e.queue) == 0 {
		delete(s.entries, id)
	}
}

// ///////////////////////////////////////////////
// Held
// ///////////////////////////////////////////////

// Held is one admitted, OS-granted whole-file lock. It does not own the
// file handle; the caller closes the file after Unlock.
type Held struct {
	set  *Set
	f    *os.File
	id   fileid.ID
	typ  lockgate.Type
	done bool
}

// Type returns the lock type this holder was granted.
func (h *Held) Type() lockgate.Type { return h.typ }

// File returns the handle the OS lock lives on.
func (h *Held) File() *os.File { return h.f }

// Unlock releases the OS lock, then the in-process admission. Calling it
// twice returns [lockgate.ErrNotHeld].
func (h *Held) Unlock() error {
	if h.done {
		return lockgate.ErrNotHeld
	}
	h.done = true
	err := flock.Unlock(h.f)
	h.set.release(h.id, h.typ)
	return err
}
