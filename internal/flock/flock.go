// Package flock wraps the operating system's advisory file locking calls
// behind a single API.
//
// Whole-file locks use flock(2) on Unix and LockFileEx on Windows; both are
// owned by the open file handle, so every *os.File is an independent lock
// holder on every platform. Byte-range locks use open-file-description
// fcntl locks on Linux and LockFileEx ranges on Windows, which are likewise
// per handle; on other Unix systems they fall back to classic POSIX record
// locks, which are owned per process — two handles to the same file within
// one process do not exclude each other there, and closing any handle drops
// the process's record locks (see [RangesPerHandle]).
//
// Network filesystems with unreliable advisory locking are unsupported.
// Locking is not re-entrant, and a handle is not safe for concurrent use by
// multiple goroutines.
package flock

import (
	"io/fs"
	"os"

	"tools.zach/dev/lockgate"
)

// ///////////////////////////////////////////////
// Byte-Range Operations
// ///////////////////////////////////////////////

// LockRange blocks until a lock of type t covering length bytes at offset off
// is granted on f. Shared locks require f to be readable and exclusive locks
// require it to be writable, so lock files are opened read-write.
func LockRange(f *os.File, t lockgate.Type, off, length int64) error {
	return lockRange(f, t, off, length, true)
}

// TryLockRange attempts the same lock as [LockRange] without blocking.
// Returns [lockgate.ErrWouldBlock] if any other holder is in the way.
func TryLockRange(f *os.File, t lockgate.Type, off, length int64) error {
	return lockRange(f, t, off, length, false)
}

// UnlockRange releases the lock covering length bytes at offset off on f.
// Unlocking a range that is not locked is a no-op at the OS level.
func UnlockRange(f *os.File, off, length int64) error {
	return unlockRange(f, off, length)
}

// RangesPerHandle reports whether this platform's byte-range locks are owned
// by the open file handle (Linux, Windows) rather than by the process
// (classic POSIX record locks elsewhere). When false, range locks cannot
// arbitrate between handles within one process.
func RangesPerHandle() bool { return rangesPerHandle }

// ///////////////////////////////////////////////
// Whole-File Operations
// ///////////////////////////////////////////////

// Lock blocks until a whole-file lock of type t is granted on f.
// Whole-file locks are per handle on every supported platform.
func Lock(f *os.File, t lockgate.Type) error {
	return lockWhole(f, t, true)
}

// TryLock attempts a whole-file lock of type t on f without blocking.
// Returns [lockgate.ErrWouldBlock] if the file is contended.
func TryLock(f *os.File, t lockgate.Type) error {
	return lockWhole(f, t, false)
}

// Unlock releases a whole-file lock on f. The lock is also dropped when the
// handle is closed.
func Unlock(f *os.File) error {
	return unlockWhole(f)
}

// opError wraps a platform failure with the operation and path for context.
// Contention sentinels pass through untouched so callers can test with
// [errors.Is].
func opError(op string, f *os.File, err error) error {
	if err == nil || err == lockgate.ErrWouldBlock {
		return err
	}
	return &fs.PathError{Op: op, Path: f.Name(), Err: err}
}
