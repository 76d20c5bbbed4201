package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"acctswap/internal/model"
	"acctswap/internal/platform"
)

// SchedulerStateStore persists the outcome of the latest renewal round.
type SchedulerStateStore struct {
	path string
}

func NewSchedulerStateStore(dir string) *SchedulerStateStore {
	return &SchedulerStateStore{path: filepath.Join(dir, platform.SchedulerStateFile)}
}

// Load returns the zero state and false when no round has run yet.
func (s *SchedulerStateStore) Load() (model.SchedulerState, bool, error) {
	var state model.SchedulerState
	ok, err := readJSON(s.path, &state)
	return state, ok, err
}

func (s *SchedulerStateStore) Save(state model.SchedulerState) error {
	return writeJSON(s.path, state)
}

// PendingStore holds the marker written around the live-state writes of a switch.
type PendingStore struct {
	path string
}

func NewPendingStore(dir string) *PendingStore {
	return &PendingStore{path: filepath.Join(dir, platform.PendingSwitchFile)}
}

func (s *PendingStore) Load() (model.PendingSwitch, bool, error) {
	var marker model.PendingSwitch
	ok, err := readJSON(s.path, &marker)
	return marker, ok, err
}

func (s *PendingStore) Save(marker model.PendingSwitch) error {
	return writeJSON(s.path, marker)
}

func (s *PendingStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600, func(written []byte) error {
		if !json.Valid(written) {
			return errors.New("invalid json")
		}
		return nil
	})
}
