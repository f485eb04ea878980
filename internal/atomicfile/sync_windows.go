//go:build windows

package atomicfile

// isSyncUnsupported reports whether a directory sync failure should be
// ignored. Windows directory handles opened through os.Open cannot be
// flushed, so all failures are treated as unsupported.
func isSyncUnsupported(error) bool { return true }
