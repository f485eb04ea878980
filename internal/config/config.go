// Package config provides configuration loading and defaults for the
// lockgate CLI.
//
// Configuration is loaded from a TOML file in the user's data directory.
// It covers retry policy for ephemeral acquisition, deny globs for paths
// where advisory locking must not be trusted (network mounts), and logging.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/lockgate/internal/atomicfile"
)

// Version is the current config schema version.
const Version = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Lock holds lock acquisition policy.
	Lock LockConfig `toml:"lock"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// LockConfig holds lock acquisition policy.
type LockConfig struct {
	// RetryMax caps identity-race retries during ephemeral acquisition.
	// Zero retries indefinitely.
	RetryMax int `toml:"retry_max"`
	// Deny lists doublestar glob patterns (slash-separated) naming paths
	// where locking is refused. Advisory locks are unreliable on network
	// filesystems; mounts of that kind belong here.
	Deny []string `toml:"deny,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version: Version,
		Lock:    LockConfig{RetryMax: 0},
		Log:     LogConfig{Level: "info", MaxSizeMB: 10},
	}
}

// ///////////////////////////////////////////////
// Load / Save
// ///////////////////////////////////////////////

// Load reads the config file at path. A missing file yields the defaults;
// a malformed file or invalid deny pattern is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Version != Version {
		return cfg, fmt.Errorf("unsupported config version %d in %s", cfg.Version, path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically, creating the parent directory if
// needed.
func Save(path string, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicfile.Write(path, data, 0o600)
}

// validate rejects configurations that would misbehave at lock time rather
// than at load time.
func (c Config) validate() error {
	if c.Lock.RetryMax < 0 {
		return fmt.Errorf("lock.retry_max must be >= 0, got %d", c.Lock.RetryMax)
	}
	for _, pat := range c.Lock.Deny {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("lock.deny pattern %q is not a valid glob", pat)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Deny Matching
// ///////////////////////////////////////////////

// Denied reports whether locking is refused for path, along with the pattern
// that matched. Matching is done on the slash-separated absolute path.
func (c Config) Denied(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	subject := filepath.ToSlash(abs)
	for _, pat := range c.Lock.Deny {
		if ok, err := doublestar.Match(pat, subject); err == nil && ok {
			return pat, true
		}
	}
	return "", false
}
