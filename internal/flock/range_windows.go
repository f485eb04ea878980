// Windows byte-range locking using LockFileEx/UnlockFileEx.
//
// LockFileEx locks are owned per handle and are mandatory rather than
// advisory: other handles are denied conflicting I/O on the locked range
// whether or not they participate in the protocol. The
// LOCKFILE_FAIL_IMMEDIATELY flag mirrors the non-blocking fcntl path on
// Unix, with ERROR_LOCK_VIOLATION reported for a contended range.

//go:build windows

package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"

	"tools.zach/dev/lockgate"
)

// LockFileEx locks belong to the handle.
const rangesPerHandle = true

// splitRange converts an (offset, length) pair into the four 32-bit halves
// LockFileEx expects.
func splitRange(off, length int64) (ol *windows.Overlapped, lenLow, lenHigh uint32) {
	ol = &windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
	return ol, uint32(length), uint32(length >> 32)
}

// lockRange takes (or waits for) a lock of type t on [off, off+length) of f.
func lockRange(f *os.File, t lockgate.Type, off, length int64, block bool) error {
	var flags uint32
	if t.IsExclusive() {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	ol, lenLow, lenHigh := splitRange(off, length)
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, lenLow, lenHigh, ol)
	if err == nil {
		return nil
	}
	if !block && errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return lockgate.ErrWouldBlock
	}
	return opError("lock", f, err)
}

// unlockRange releases the lock on [off, off+length) of f.
func unlockRange(f *os.File, off, length int64) error {
	ol, lenLow, lenHigh := splitRange(off, length)
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, lenLow, lenHigh, ol)
	if err != nil {
		return opError("unlock", f, err)
	}
	return nil
}
