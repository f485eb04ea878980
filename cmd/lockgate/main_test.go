package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"tools.zach/dev/lockgate"
	"tools.zach/dev/lockgate/internal/config"
	"tools.zach/dev/lockgate/internal/paths"
)

func TestLockType(t *testing.T) {
	if lockType(true) != lockgate.Shared {
		t.Error("lockType(true) != Shared")
	}
	if lockType(false) != lockgate.Exclusive {
		t.Error("lockType(false) != Exclusive")
	}
}

func TestCmdTry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "res.lock")

	if code := cmdTry([]string{"-data-dir", filepath.Join(dir, "data"), path}); code != exitOK {
		t.Fatalf("cmdTry = %d, want %d", code, exitOK)
	}
	// try acquires and releases; the lock file must not linger.
	if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("lock file left behind, stat = %v", err)
	}
}

func TestCmdTryUsage(t *testing.T) {
	if code := cmdTry([]string{}); code != exitUsage {
		t.Errorf("cmdTry with no path = %d, want %d", code, exitUsage)
	}
	if code := cmdTry([]string{"a", "b"}); code != exitUsage {
		t.Errorf("cmdTry with two paths = %d, want %d", code, exitUsage)
	}
}

func TestCmdProbeClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "res.lock")

	if code := cmdProbe([]string{"-data-dir", filepath.Join(dir, "data"), path}); code != exitOK {
		t.Fatalf("cmdProbe = %d, want %d", code, exitOK)
	}
}

func TestDenyGlobRefusesLocking(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "guarded", "res.lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg := config.Default()
	cfg.Lock.Deny = []string{filepath.ToSlash(dir) + "/guarded/**"}
	d := paths.DataDir{Root: dataDir}
	if err := config.Save(d.Config(), cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if code := cmdTry([]string{"-data-dir", dataDir, path}); code != exitError {
		t.Errorf("cmdTry on denied path = %d, want %d", code, exitError)
	}
}

func TestResolveVersionLdflags(t *testing.T) {
	orig := version
	version = "1.2.3"
	defer func() { version = orig }()
	if got := resolveVersion(); got != "1.2.3" {
		t.Errorf("resolveVersion = %q, want 1.2.3", got)
	}
}

func TestDefaultDataDirIsAbsoluteOrFallback(t *testing.T) {
	got := defaultDataDir()
	if got == "" {
		t.Fatal("defaultDataDir returned empty string")
	}
	if filepath.Base(got) != paths.DataDirRel {
		t.Errorf("defaultDataDir = %q, want a %s directory", got, paths.DataDirRel)
	}
}
