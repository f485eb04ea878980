//go:build windows

package fileid

import (
	"io/fs"
	"os"

	"github.com/Microsoft/go-winio"
)

// fromFile reads the volume serial and 128-bit file ID via
// GetFileInformationByHandleEx(FileIdInfo).
func fromFile(f *os.File) (ID, error) {
	info, err := winio.GetFileID(f)
	if err != nil {
		return ID{}, &fs.PathError{Op: "file_id_info", Path: f.Name(), Err: err}
	}
	return ID{Device: info.VolumeSerialNumber, Index: info.FileID}, nil
}
