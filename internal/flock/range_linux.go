// Linux byte-range locking using open-file-description locks.
//
// F_OFD_SETLK/F_OFD_SETLKW locks are owned by the open file description
// rather than the process, so every *os.File behaves as an independent lock
// holder — the ownership model the protocols in this module assume. Classic
// F_SETLK locks (see range_unix.go) do not give us that on Linux's siblings,
// which is why this backend is split out.

//go:build linux

package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"tools.zach/dev/lockgate"
)

// OFD locks belong to the open file description.
const rangesPerHandle = true

// lockRange takes (or waits for) a lock of type t on [off, off+length) of f.
func lockRange(f *os.File, t lockgate.Type, off, length int64, block bool) error {
	lockType := int16(unix.F_RDLCK)
	if t.IsExclusive() {
		lockType = unix.F_WRLCK
	}
	cmd := unix.F_OFD_SETLK
	if block {
		cmd = unix.F_OFD_SETLKW
	}
	lk := unix.Flock_t{
		Type:   lockType,
		Whence: 0, // SEEK_SET
		Start:  off,
		Len:    length,
		// Pid must be zero for OFD locks.
	}
	for {
		err := unix.FcntlFlock(f.Fd(), cmd, &lk)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			// The runtime interrupts blocked syscalls (e.g. for async
			// preemption); the wait must be restarted, not surfaced.
			continue
		case !block && (errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EACCES)):
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
	if err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, &lk); err != nil {
		return opError("unlock", f, err)
	}
	return nil
}
