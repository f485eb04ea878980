// Package paths centralizes the file and directory naming conventions used
// across the project. Lock file names are derived here so every consumer
// agrees on which file guards which resource.
package paths

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Suffixes appended to a guarded path to derive its companion files.
const (
	// LockSuffix names the ephemeral lock file guarding a resource:
	// "project/data" is guarded by "project/data.lock".
	LockSuffix = ".lock"
	// TempSuffix marks staging directories created next to a target during
	// an atomic replacement.
	TempSuffix = ".tmp"
	// OldSuffix marks the displaced previous directory during a swap.
	OldSuffix = ".old"
)

// Data directory file names.
const (
	ConfigFile = "config.toml"
	LogFile    = "lockgate.log"
	DataDirRel = ".lockgate" // relative to $HOME
)

// LockPathFor returns the lock file path guarding target.
func LockPathFor(target string) string {
	return target + LockSuffix
}

// ScratchName returns a sibling path for target with the given suffix and a
// random tag, for staging directories that must not collide with leftovers
// from a crashed run: "data" -> "data.tmp.3f82c9d4".
func ScratchName(target, suffix string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return target + suffix + "." + hex.EncodeToString(b)
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }
