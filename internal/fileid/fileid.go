// Package fileid identifies the physical file behind an open handle, so a
// caller can detect that a path has been deleted and recreated out from
// under a handle it already locked.
//
// On Unix the identity is the (device, inode) pair from fstat(2); on Windows
// it is the volume serial number plus the 128-bit file ID from
// GetFileInformationByHandleEx, which stays unique on ReFS volumes where the
// classic 64-bit file index can be synthesized.
package fileid

import "os"

// ID is a comparable token for a file's on-disk identity. Two handles with
// equal IDs refer to the same physical file; an ID is only meaningful while
// at least one handle to the file remains open (inode numbers are recycled).
type ID struct {
	// Device is the device number (Unix) or volume serial number (Windows).
	Device uint64
	// Index is the inode number (Unix, low 8 bytes) or 128-bit file ID (Windows).
	Index [16]byte
}

// FromFile returns the identity of the file behind f.
func FromFile(f *os.File) (ID, error) {
	return fromFile(f)
}

// SameFile reports whether a and b refer to the same physical file.
func SameFile(a, b *os.File) (bool, error) {
	ida, err := FromFile(a)
	if err != nil {
		return false, err
	}
	idb, err := FromFile(b)
	if err != nil {
		return false, err
	}
	return ida == idb, nil
}
