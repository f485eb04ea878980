// Whole-file locking via LockFileEx over the maximum byte range.
//
// Windows has no "rest of file" length, so whole-file locks cover the
// largest expressible range. Lock files are tiny, so real data never sits
// under the reserved range.

//go:build windows

package flock

import (
	"os"

	"golang.org/x/sys/windows"

	"tools.zach/dev/lockgate"
)

// allBytes is the low and high half of the maximum lockable range length.
const allBytes = ^uint32(0)

// lockWhole takes (or waits for) a whole-file lock of type t on f.
func lockWhole(f *os.File, t lockgate.Type, block bool) error {
	var flags uint32
	if t.IsExclusive() {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, allBytes, allBytes, new(windows.Overlapped))
	if err == nil {
		return nil
	}
	if !block && err == windows.ERROR_LOCK_VIOLATION {
		return lockgate.ErrWouldBlock
	}
	return opError("lock", f, err)
}

// unlockWhole releases a whole-file lock on f.
func unlockWhole(f *os.File) error {
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, allBytes, allBytes, new(windows.Overlapped))
	if err != nil {
		return opError("unlock", f, err)
	}
	return nil
}
