//go:build unix

package atomicfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isSyncUnsupported reports whether the filesystem refuses fsync on
// directories (some network and FUSE filesystems return EINVAL or ENOTSUP).
func isSyncUnsupported(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTSUP)
}
