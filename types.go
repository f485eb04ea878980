// Package lockgate holds the shared vocabulary of the locking protocols:
// the lock type enumeration and the sentinel errors that distinguish
// expected contention from real faults.
//
// The protocols themselves live in [tools.zach/dev/lockgate/fairlock]
// (shared/exclusive byte-range locking with a contention probe) and
// [tools.zach/dev/lockgate/elock] (a self-cleaning lock file that exists
// only while contended).
package lockgate

import "errors"

// ///////////////////////////////////////////////
// Lock Types
// ///////////////////////////////////////////////

// Type selects between shared and exclusive locking. Any number of Shared
// holders coexist; an Exclusive holder excludes everything else.
type Type int

const (
	// Shared is a read-style lock compatible with other Shared holders.
	Shared Type = iota
	// Exclusive is a write-style lock incompatible with all other holders.
	Exclusive
)

// String returns "shared" or "exclusive".
func (t Type) String() string {
	if t == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// IsExclusive reports whether t is [Exclusive].
func (t Type) IsExclusive() bool { return t == Exclusive }

// ///////////////////////////////////////////////
// Error Taxonomy
// ///////////////////////////////////////////////

// ErrWouldBlock reports that a non-blocking acquisition found the lock
// contended. It is expected control flow, not a fault: the caller holds
// nothing and may retry or give up.
var ErrWouldBlock = errors.New("lock is held by another party")

// ErrRetryExhausted reports that an acquisition hit its configured retry cap
// while the lock file kept being replaced underneath it. Only returned when
// a cap is set; the default is to retry indefinitely.
var ErrRetryExhausted = errors.New("lock retry budget exhausted")

// ErrNotHeld reports a protocol misuse: an operation that requires a held
// lock was called on an unlocked handle, or vice versa.
var ErrNotHeld = errors.New("lock not held")
