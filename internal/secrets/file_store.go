package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"acctswap/internal/store"
)

// ErrEmptyValue is returned by file-backed stores asked to keep an empty blob.
var ErrEmptyValue = errors.New("refusing to store an empty secret")

// FileStore keeps each blob in its own owner-only file.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

var unsafeKeyChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")

func (s *FileStore) path(key string) string {
	return filepath.Join(s.baseDir, unsafeKeyChars.Replace(key)+".json")
}

func (s *FileStore) Set(key string, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	return store.WriteFileAtomic(s.path(key), value, 0o600, sameBytes(value))
}

// sameBytes checks that what reached the disk is exactly what was written.
func sameBytes(want []byte) func([]byte) error {
	return func(written []byte) error {
		if !bytes.Equal(written, want) {
			return errors.New("short or corrupted write")
		}
		return nil
	}
}

func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
