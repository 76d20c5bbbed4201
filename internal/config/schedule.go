package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"acctswap/internal/platform"
	"acctswap/internal/renewal"
	"acctswap/internal/scheduler"
	"acctswap/internal/store"
)

// Schedule is the set of options a daemon was started with.
type Schedule struct {
	At            string  `toml:"at,omitempty"`
	Accounts      string  `toml:"accounts"`
	IntervalHours float64 `toml:"interval"`
	Model         string  `toml:"model"`
	Message       string  `toml:"message"`
}

func DefaultSchedule() Schedule {
	return Schedule{
		Accounts:      "all",
		IntervalHours: scheduler.DefaultInterval.Hours(),
		Model:         renewal.DefaultModel,
		Message:       renewal.DefaultMessage,
	}
}

// Options validates the schedule and converts it for the scheduler.
func (s Schedule) Options() (scheduler.Options, error) {
	var opts scheduler.Options
	if strings.TrimSpace(s.At) != "" {
		at, err := scheduler.ParseClockTime(s.At)
		if err != nil {
			return opts, err
		}
		opts.At = &at
	}
	accounts, err := scheduler.ParseAccounts(s.Accounts)
	if err != nil {
		return opts, err
	}
	opts.Accounts = accounts
	interval, err := scheduler.ParseIntervalHours(s.IntervalHours)
	if err != nil {
		return opts, err
	}
	opts.Interval = interval
	opts.Model = s.Model
	opts.Message = s.Message
	return opts, nil
}

func schedulePath(dir string) string {
	return filepath.Join(dir, platform.ScheduleFile)
}

func SaveSchedule(dir string, s Schedule) error {
	if _, err := s.Options(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	return store.WriteFileAtomic(schedulePath(dir), buf.Bytes(), 0o600, func(data []byte) error {
		var check Schedule
		_, err := toml.Decode(string(data), &check)
		return err
	})
}

// LoadSchedule returns the stored schedule, or ok=false when none was saved.
func LoadSchedule(dir string) (Schedule, bool, error) {
	path := schedulePath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Schedule{}, false, nil
	}
	if err != nil {
		return Schedule{}, false, err
	}
	s := DefaultSchedule()
	if _, err := toml.Decode(string(data), &s); err != nil {
		return Schedule{}, false, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, path, err)
	}
	return s, true, nil
}
