// Package main implements the lockgate CLI, a small tool for holding,
// probing, and waiting on the file locks this module provides. Scripted
// callers sequence against its stdout ("acquired"/"released") and exit
// codes; the hold verb doubles as a cross-process worker for integration
// harnesses.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"tools.zach/dev/lockgate/internal/config"
	"tools.zach/dev/lockgate/internal/logger"
	"tools.zach/dev/lockgate/internal/paths"
)

// ///////////////////////////////////////////////
// Exit Codes
// ///////////////////////////////////////////////

// Exit codes. exitBusy distinguishes expected contention from failure so
// scripts can branch on it.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitBusy  = 3
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// resolveVersion returns the build version string, falling back to the VCS
// revision the toolchain embeds when ldflags were not set.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	v := "dev+" + revision[:min(7, len(revision))]
	if dirty {
		v += ".dirty"
	}
	return v
}

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// env is the loaded runtime environment shared by all verbs.
type env struct {
	cfg     config.Config
	dataDir paths.DataDir
	log     *slog.Logger
	closer  io.Closer
}

// defaultDataDir returns ~/.lockgate, or a relative fallback when the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return paths.DataDirRel
	}
	return filepath.Join(home, paths.DataDirRel)
}

// loadEnv loads config and wires the rotating-file logger as the slog
// default.
func loadEnv(dataDir string) (*env, error) {
	d := paths.DataDir{Root: dataDir}
	cfg, err := config.Load(d.Config())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	log, closer := logger.New(d.Log(), logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB)
	slog.SetDefault(log)
	return &env{cfg: cfg, dataDir: d, log: log, closer: closer}, nil
}

func (e *env) close() {
	if e.closer != nil {
		e.closer.Close()
	}
}

// checkDenied refuses to lock paths matching the configured deny globs.
func (e *env) checkDenied(path string) error {
	if pat, denied := e.cfg.Denied(path); denied {
		return fmt.Errorf("locking refused for %s: matches deny pattern %q (advisory locks are unreliable there)", path, pat)
	}
	return nil
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

func usage() {
	fmt.Fprintf(os.Stderr, `lockgate %s — cross-process file locking

Usage:
  lockgate hold  [-shared] [-try] <path>   acquire, hold until stdin closes or a signal
  lockgate try   [-shared] <path>          acquire and release; exit %d if busy
  lockgate probe <path>                    hold shared and report contention
  lockgate wait  [-timeout d] <path>       wait for the lock file to disappear
  lockgate logs  [-n lines]                print the tail of the log file
  lockgate version                         print the version

Common flags:
  -data-dir dir   config and log location (default %s)
`, resolveVersion(), exitBusy, defaultDataDir())
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	verb, args := os.Args[1], os.Args[2:]
	switch verb {
	case "hold":
		os.Exit(cmdHold(args))
	case "try":
		os.Exit(cmdTry(args))
	case "probe":
		os.Exit(cmdProbe(args))
	case "wait":
		os.Exit(cmdWait(args))
	case "logs":
		os.Exit(cmdLogs(args))
	case "version":
		fmt.Println(resolveVersion())
		os.Exit(exitOK)
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "lockgate: unknown command %q\n", verb)
		usage()
		os.Exit(exitUsage)
	}
}

// fail prints an error for humans and logs it for the record.
func fail(err error) int {
	slog.Error("command failed", "error", err)
	fmt.Fprintln(os.Stderr, "lockgate:", err)
	return exitError
}

// newFlagSet returns a verb flag set with the shared -data-dir flag.
func newFlagSet(verb string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(verb, flag.ExitOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "Data directory for config and logs")
	return fs, dataDir
}
