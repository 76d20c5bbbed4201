package platform

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	homeEnv = "ACCTSWAP_HOME"

	RegistryFile       = "registry.json"
	SchedulerStateFile = "scheduler-state.json"
	PendingSwitchFile  = "pending-switch.json"
	ScheduleFile       = "schedule.toml"
	ConfigFile         = "config.toml"
	PIDFile            = "scheduler.pid"
	LogFile            = "scheduler.log"
)

// ConfigDir is the data directory holding the registry, backups and daemon files.
func ConfigDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(homeEnv)); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "acctswap"), nil
}

func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

// ToolDir is the external tool's own state directory.
func ToolDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude"), nil
}

func DefaultCredentialsPath() (string, error) {
	dir, err := ToolDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".credentials.json"), nil
}

// DefaultProfilePath prefers the profile inside the tool directory and falls
// back to the one in the home directory.
func DefaultProfilePath() (string, error) {
	dir, err := ToolDir()
	if err != nil {
		return "", err
	}
	inner := filepath.Join(dir, ".claude.json")
	if _, err := os.Stat(inner); err == nil {
		return inner, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude.json"), nil
}
