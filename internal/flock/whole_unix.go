// Whole-file locking via flock(2).
//
// Unlike fcntl record locks, flock locks are owned by the open file
// description on every Unix flavor, so each *os.File is an independent
// holder even within one process. This is the primitive the ephemeral lock
// protocol is built on.

//go:build unix

package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"tools.zach/dev/lockgate"
)

// lockWhole takes (or waits for) a whole-file flock of type t on f.
func lockWhole(f *os.File, t lockgate.Type, block bool) error {
	how := unix.LOCK_SH
	if t.IsExclusive() {
		how = unix.LOCK_EX
	}
	if !block {
		how |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case !block && (errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)):
			return lockgate.ErrWouldBlock
		default:
			return opError("flock", f, err)
		}
	}
}

// unlockWhole releases a whole-file flock on f.
func unlockWhole(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return opError("funlock", f, err)
	}
	return nil
}
