package dircommit_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/dircommit"
	"tools.zach/dev/lockgate/internal/paths"
)

func target(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "data")
}

// writeMarker drops a marker file into dir so tests can tell generations apart.
func writeMarker(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte(content), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
}

func readMarker(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "marker"))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	return string(b)
}

func assertLockGone(t *testing.T, tgt string) {
	t.Helper()
	if _, err := os.Lstat(paths.LockPathFor(tgt)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("lock file should be gone after release, stat = %v", err)
	}
}

func TestReplaceCreatesFreshTarget(t *testing.T) {
	tgt := target(t)
	err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		return nil
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := readMarker(t, tgt); got != "v1" {
		t.Errorf("marker = %q, want v1", got)
	}
	assertLockGone(t, tgt)
}

func TestReplaceSwapsExistingTarget(t *testing.T) {
	tgt := target(t)
	for _, v := range []string{"v1", "v2"} {
		err := dircommit.Replace(tgt, func(scratch string) error {
			writeMarker(t, scratch, v)
			return nil
		})
		if err != nil {
			t.Fatalf("Replace %s: %v", v, err)
		}
	}
	if got := readMarker(t, tgt); got != "v2" {
		t.Errorf("marker = %q, want v2", got)
	}
	// Neither the scratch nor the displaced directory may survive.
	entries, err := os.ReadDir(filepath.Dir(tgt))
	if err != nil {
		t.Fatalf("read parent: %v", err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(tgt) {
			t.Errorf("unexpected leftover %q in parent", e.Name())
		}
	}
	assertLockGone(t, tgt)
}

func TestBuildErrorLeavesTargetUntouched(t *testing.T) {
	tgt := target(t)
	if err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		return nil
	}); err != nil {
		t.Fatalf("Replace v1: %v", err)
	}

	boom := errors.New("build failed")
	err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v2")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Replace = %v, want the build error", err)
	}
	if got := readMarker(t, tgt); got != "v1" {
		t.Errorf("marker = %q, want v1 (failed build must not land)", got)
	}
	assertLockGone(t, tgt)
}

func TestReplaceCommitsDespiteStuckOldDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission-based removal failure is not portable to windows")
	}
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	tgt := target(t)

	// v1 carries a read-only subdirectory, so once v1 is displaced the swap
	// cannot delete it.
	err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		sealed := filepath.Join(scratch, "sealed")
		if err := os.Mkdir(sealed, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(sealed, "f"), nil, 0o644); err != nil {
			return err
		}
		return os.Chmod(sealed, 0o555)
	})
	if err != nil {
		t.Fatalf("Replace v1: %v", err)
	}
	// Make everything deletable again so TempDir cleanup succeeds.
	t.Cleanup(func() {
		filepath.WalkDir(filepath.Dir(tgt), func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				os.Chmod(p, 0o755)
			}
			return nil
		})
	})

	// The swap commits; the undeletable displaced dir must not fail it.
	if err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v2")
		return nil
	}); err != nil {
		t.Fatalf("Replace v2 = %v, want success despite stuck displaced dir", err)
	}
	if got := readMarker(t, tgt); got != "v2" {
		t.Errorf("marker = %q, want v2", got)
	}
	assertLockGone(t, tgt)
}

func TestReplaceSweepsLeftovers(t *testing.T) {
	tgt := target(t)
	// Plant the kind of debris a crashed replacement leaves behind.
	stale := []string{
		tgt + paths.TempSuffix + ".deadbeef",
		tgt + paths.OldSuffix + ".deadbeef",
	}
	for _, dir := range stale {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("plant %s: %v", dir, err)
		}
	}

	if err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		return nil
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	for _, dir := range stale {
		if _, err := os.Lstat(dir); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("leftover %s should have been swept, stat = %v", dir, err)
		}
	}
}

func TestRemove(t *testing.T) {
	tgt := target(t)
	if err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		return nil
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := dircommit.Remove(tgt); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Lstat(tgt); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("target should be gone, stat = %v", err)
	}
	assertLockGone(t, tgt)

	// Removing an absent directory is fine.
	if err := dircommit.Remove(tgt); err != nil {
		t.Fatalf("Remove of absent dir: %v", err)
	}
}

func TestGuardAdmission(t *testing.T) {
	tgt := target(t)
	if err := dircommit.Replace(tgt, func(scratch string) error {
		writeMarker(t, scratch, "v1")
		return nil
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	guard, err := dircommit.LockDir(tgt, lockgate.Shared)
	if err != nil {
		t.Fatalf("LockDir: %v", err)
	}
	if guard.Type() != lockgate.Shared {
		t.Errorf("Type = %v, want Shared", guard.Type())
	}

	// An exclusive guard cannot be taken while a reader holds a shared one.
	if _, err := dircommit.TryLockDir(tgt, lockgate.Exclusive); !errors.Is(err, lockgate.ErrWouldBlock) {
		t.Fatalf("TryLockDir exclusive under shared guard = %v, want ErrWouldBlock", err)
	}
	// Another reader can join.
	other, err := dircommit.TryLockDir(tgt, lockgate.Shared)
	if err != nil {
		t.Fatalf("TryLockDir shared under shared guard: %v", err)
	}
	if err := other.Release(); err != nil {
		t.Fatalf("Release other: %v", err)
	}

	if err := guard.Release(); err != nil {
		t.Fatalf("Release guard: %v", err)
	}
	assertLockGone(t, tgt)
}

func TestScratchStaysInParent(t *testing.T) {
	tgt := target(t)
	var scratchDir string
	if err := dircommit.Replace(tgt, func(scratch string) error {
		scratchDir = scratch
		return nil
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if filepath.Dir(scratchDir) != filepath.Dir(tgt) {
		t.Errorf("scratch %q not a sibling of target %q", scratchDir, tgt)
	}
	if !strings.HasPrefix(filepath.Base(scratchDir), filepath.Base(tgt)+paths.TempSuffix+".") {
		t.Errorf("scratch name %q lacks the staging prefix", filepath.Base(scratchDir))
	}
}
