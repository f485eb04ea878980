// POSIX byte-range locking via fcntl record locks.
//
// Compiled on Unix systems other than Linux (macOS, *BSD, Solaris). Classic
// F_SETLK locks are owned per process: all handles a process holds on a file
// share one lock table entry, and closing any of them drops the process's
// locks on that file. The in-process admission layer (internal/lockset)
// keeps that caveat from being observable for the whole-file protocols;
// byte-range users must avoid opening a file twice within one process.

//go:build unix && !linux

package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"tools.zach/dev/lockgate"
)

// Classic POSIX record locks belong to the process, not the handle.
const rangesPerHandle = false

// lockRange takes (or waits for) a lock of type t on [off, off+length) of f.
func lockRange(f *os.File, t lockgate.Type, off, length int64, block bool) error {
	lockType := int16(unix.F_RDLCK)
	if t.IsExclusive() {
		lockType = unix.F_WRLCK
	}
	cmd := unix.F_SETLK
	if block {
		cmd = unix.F_SETLKW
	}
	lk := unix.Flock_t{
		Type:   lockType,
		Whence: 0, // SEEK_SET
		Start:  off,
		Len:    length,
	}
	for {
		err := unix.FcntlFlock(f.Fd(), cmd, &lk)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case !block && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EACCES)):
			// POSIX permits either EAGAIN or EACCES for a held lock.
			return lockgate.ErrWouldBlock
		default:
			return opError("lock", f, err)
		}
	}
}

// unlockRange releases the lock on [off, off+length) of f.
func unlockRange(f *os.File, off, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  off,
		Len:    length,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk); err != nil {
		return opError("unlock", f, err)
	}
	return nil
}
