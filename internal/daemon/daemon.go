// Package daemon manages the detached scheduler process through a pid record
// in the data directory.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"acctswap/internal/platform"
	"acctswap/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("scheduler daemon already running")
	ErrNotRunning     = errors.New("scheduler daemon is not running")
)

// Info is the pid record written when the daemon is started.
type Info struct {
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
	Args    []string  `json:"args,omitempty"`
}

type Control struct {
	dir      string
	alive    func(pid int) (bool, error)
	stopWait time.Duration
}

func New(dir string) *Control {
	return &Control{dir: dir, alive: pidAlive, stopWait: 5 * time.Second}
}

func pidAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return process.PidExists(int32(pid))
}

func (c *Control) PIDPath() string {
	return filepath.Join(c.dir, platform.PIDFile)
}

func (c *Control) LogPath() string {
	return filepath.Join(c.dir, platform.LogFile)
}

func (c *Control) read() (Info, bool, error) {
	data, err := os.ReadFile(c.PIDPath())
	if os.IsNotExist(err) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		// unreadable record, treat like a stale one
		return Info{}, true, nil
	}
	return info, true, nil
}

// Running reports the live daemon, removing a record whose process is gone.
func (c *Control) Running() (Info, bool, error) {
	info, found, err := c.read()
	if err != nil || !found {
		return Info{}, false, err
	}
	alive, err := c.alive(info.PID)
	if err != nil {
		return Info{}, false, fmt.Errorf("check pid %d: %w", info.PID, err)
	}
	if !alive {
		if err := os.Remove(c.PIDPath()); err != nil && !os.IsNotExist(err) {
			return Info{}, false, err
		}
		return Info{}, false, nil
	}
	return info, true, nil
}

// Record writes the pid record for pid.
func (c *Control) Record(pid int, args []string) (Info, error) {
	info := Info{PID: pid, Started: time.Now().UTC(), Args: args}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return Info{}, err
	}
	err = store.WriteFileAtomic(c.PIDPath(), data, 0o600, func(b []byte) error {
		var check Info
		return json.Unmarshal(b, &check)
	})
	return info, err
}

// Clear removes the pid record if it still names pid.
func (c *Control) Clear(pid int) error {
	info, found, err := c.read()
	if err != nil || !found {
		return err
	}
	if info.PID != 0 && info.PID != pid {
		return nil
	}
	if err := os.Remove(c.PIDPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Start re-executes the current binary with args in a new session, output
// appended to the daemon log.
func (c *Control) Start(args []string) (Info, error) {
	if info, running, err := c.Running(); err != nil {
		return Info{}, err
	} else if running {
		return info, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, info.PID)
	}

	exe, err := os.Executable()
	if err != nil {
		return Info{}, fmt.Errorf("locate executable: %w", err)
	}
	logFile, err := os.OpenFile(c.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return Info{}, fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Dir = c.dir
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)
	if err := child.Start(); err != nil {
		return Info{}, fmt.Errorf("start daemon: %w", err)
	}

	info, err := c.Record(child.Process.Pid, args)
	if err != nil {
		_ = terminate(child.Process.Pid)
		return Info{}, fmt.Errorf("write pid record: %w", err)
	}
	_ = child.Process.Release()
	return info, nil
}

// Stop terminates the daemon's process group and waits briefly for it to exit.
func (c *Control) Stop() (Info, error) {
	info, running, err := c.Running()
	if err != nil {
		return Info{}, err
	}
	if !running {
		return Info{}, ErrNotRunning
	}
	if err := terminate(info.PID); err != nil {
		return info, fmt.Errorf("stop pid %d: %w", info.PID, err)
	}

	deadline := time.Now().Add(c.stopWait)
	for time.Now().Before(deadline) {
		alive, err := c.alive(info.PID)
		if err != nil || !alive {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := os.Remove(c.PIDPath()); err != nil && !os.IsNotExist(err) {
		return info, err
	}
	return info, nil
}
