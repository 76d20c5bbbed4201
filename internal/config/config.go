// Package config reads the optional config.toml and the schedule a daemon was
// started with.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"acctswap/internal/platform"
)

const (
	toolEnv     = "ACCTSWAP_TOOL"
	logLevelEnv = "ACCTSWAP_LOG_LEVEL"

	DefaultToolBinary   = "claude"
	DefaultPauseSeconds = 5
)

// Config holds the per-installation settings. Empty path fields mean "use the
// platform default".
type Config struct {
	ToolBinary      string `toml:"tool_binary"`
	ProfilePath     string `toml:"profile_path"`
	CredentialsPath string `toml:"credentials_path"`
	LogLevel        string `toml:"log_level"`
	PauseSeconds    *int   `toml:"pause_seconds"`

	// Dir is the data directory the file was read from.
	Dir string `toml:"-"`
}

// Load reads <dir>/config.toml when present and applies environment
// overrides on top.
func Load(dir string) (Config, error) {
	cfg := Config{Dir: dir}
	path := filepath.Join(dir, platform.ConfigFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.Dir = dir

	if v := strings.TrimSpace(os.Getenv(toolEnv)); v != "" {
		cfg.ToolBinary = v
	}
	if v := strings.TrimSpace(os.Getenv(logLevelEnv)); v != "" {
		cfg.LogLevel = v
	}
	if strings.TrimSpace(cfg.ToolBinary) == "" {
		cfg.ToolBinary = DefaultToolBinary
	}
	if cfg.PauseSeconds != nil && *cfg.PauseSeconds < 0 {
		return Config{}, fmt.Errorf("read %s: pause_seconds must not be negative", path)
	}
	return cfg, nil
}

// LoadDefault resolves the data directory and loads the config inside it.
func LoadDefault() (Config, error) {
	dir, err := platform.ConfigDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := platform.EnsureDir(dir); err != nil {
		return Config{}, fmt.Errorf("create data directory: %w", err)
	}
	return Load(dir)
}

func (c Config) Pause() time.Duration {
	if c.PauseSeconds == nil {
		return DefaultPauseSeconds * time.Second
	}
	return time.Duration(*c.PauseSeconds) * time.Second
}

func (c Config) ResolveProfilePath() (string, error) {
	if p := strings.TrimSpace(c.ProfilePath); p != "" {
		return p, nil
	}
	return platform.DefaultProfilePath()
}

func (c Config) ResolveCredentialsPath() (string, error) {
	if p := strings.TrimSpace(c.CredentialsPath); p != "" {
		return p, nil
	}
	return platform.DefaultCredentialsPath()
}
