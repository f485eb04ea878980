//go:build unix

package fileid

import (
	"encoding/binary"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// fromFile reads (device, inode) via fstat(2).
func fromFile(f *os.File) (ID, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return ID{}, &fs.PathError{Op: "fstat", Path: f.Name(), Err: err}
	}
	var id ID
	id.Device = uint64(st.Dev)
	binary.LittleEndian.PutUint64(id.Index[:8], st.Ino)
	return id, nil
}
