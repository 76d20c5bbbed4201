package store

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctswap/internal/model"
)

func TestRegistryLoadMissingReturnsDefault(t *testing.T) {
	s, err := NewRegistryStore(t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.Exists())

	reg, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, reg.Sequence)
	assert.Empty(t, reg.Accounts)
	_, ok := reg.Active()
	assert.False(t, ok)
}

func TestRegistrySaveLoad(t *testing.T) {
	s, err := NewRegistryStore(t.TempDir())
	require.NoError(t, err)

	reg := model.DefaultRegistry()
	reg.Put(model.Account{Number: 1, Email: "a@example.com", IdentityUUID: "u-1"})
	reg.Put(model.Account{Number: 2, Email: "b@example.com", IdentityUUID: "u-2", Label: "work"})
	reg.SetActive(2)
	require.NoError(t, s.Save(reg))
	assert.True(t, s.Exists())

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	if info.Mode().Perm()&0o077 != 0 && runtime.GOOS != "windows" {
		t.Fatalf("registry should not be readable by others, mode %v", info.Mode().Perm())
	}

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Sequence)
	active, ok := got.Active()
	require.True(t, ok)
	assert.Equal(t, 2, active)
	acct, ok := got.Account(2)
	require.True(t, ok)
	assert.Equal(t, "work", acct.Label)
	assert.WithinDuration(t, time.Now(), got.LastUpdated, time.Minute)
}

func TestRegistrySaveRefusesInvalidAndKeepsPreviousFile(t *testing.T) {
	s, err := NewRegistryStore(t.TempDir())
	require.NoError(t, err)
	reg := model.DefaultRegistry()
	reg.Put(model.Account{Number: 1, Email: "a@example.com"})
	require.NoError(t, s.Save(reg))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	bad := reg
	bad.Sequence = []int{1, 1}
	assert.Error(t, s.Save(bad))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files must be cleaned up")
	}
}

func TestRegistryLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewRegistryStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"sequence":[1],"accounts":{}}`), 0o600))
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWriteFileAtomicValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	err := WriteFileAtomic(path, []byte("x"), 0o600, func([]byte) error { return errors.New("nope") })
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file left behind")

	require.NoError(t, WriteFileAtomic(path, []byte("ok"), 0o600, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestSchedulerStateStore(t *testing.T) {
	s := NewSchedulerStateStore(t.TempDir())
	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	state := model.SchedulerState{
		LastPing:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		NextPing:     time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		SuccessCount: 2,
		FailedCount:  1,
		Results:      []model.PingResult{{Number: 2, Email: "b@example.com", Error: "ping timed out"}},
	}
	require.NoError(t, s.Save(state))
	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, got)
}

func TestPendingStore(t *testing.T) {
	s := NewPendingStore(t.TempDir())
	from := 1
	marker := model.PendingSwitch{ID: "abc", From: &from, To: 2, StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Save(marker))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, marker, got)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, ok, err = s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}
