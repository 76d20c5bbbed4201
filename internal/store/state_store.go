package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"acctswap/internal/model"
	"acctswap/internal/platform"
)

// ErrCorrupt reports a persisted document that cannot be trusted.
var ErrCorrupt = errors.New("persisted state is corrupt")

type RegistryStore struct {
	mu   sync.RWMutex
	path string
}

func NewRegistryStore(dir string) (*RegistryStore, error) {
	if err := platform.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &RegistryStore{path: filepath.Join(dir, platform.RegistryFile)}, nil
}

// Exists reports whether a registry has been created yet.
func (s *RegistryStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *RegistryStore) Load() (model.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.DefaultRegistry(), nil
	}
	if err != nil {
		return model.Registry{}, err
	}
	return decodeRegistry(data)
}

func (s *RegistryStore) Save(reg model.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg.LastUpdated = time.Now().UTC()
	if reg.Accounts == nil {
		reg.Accounts = map[string]model.Account{}
	}
	if reg.Sequence == nil {
		reg.Sequence = []int{}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("refusing to save registry: %w", err)
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data, 0o600, func(written []byte) error {
		_, err := decodeRegistry(written)
		return err
	})
}

func (s *RegistryStore) Path() string {
	return s.path
}

func decodeRegistry(data []byte) (model.Registry, error) {
	var reg model.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return model.Registry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if reg.Accounts == nil {
		reg.Accounts = map[string]model.Account{}
	}
	if reg.Sequence == nil {
		reg.Sequence = []int{}
	}
	if err := reg.Validate(); err != nil {
		return model.Registry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return reg, nil
}
