//go:build windows

package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"acctswap/internal/store"
)

// DPAPIStore is a file store whose blobs are protected for the current user.
type DPAPIStore struct {
	baseDir string
}

func NewDefaultStore(dataDir string) (Store, error) {
	baseDir := filepath.Join(dataDir, "secrets")
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}
	return &DPAPIStore{baseDir: baseDir}, nil
}

func (s *DPAPIStore) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.baseDir, name+".bin")
}

func (s *DPAPIStore) Set(key string, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	protected, err := dpapiProtect(value)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(s.path(key), protected, 0o600, sameBytes(protected))
}

func (s *DPAPIStore) Get(key string) ([]byte, error) {
	protected, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dpapiUnprotect(protected)
}

func (s *DPAPIStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func dpapiProtect(plain []byte) ([]byte, error) {
	in := bytesToBlob(plain)
	var out windows.DataBlob
	if err := windows.CryptProtectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("dpapi protect: %w", err)
	}
	defer func() {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	}()
	return blobToBytes(out), nil
}

func dpapiUnprotect(protected []byte) ([]byte, error) {
	in := bytesToBlob(protected)
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out); err != nil {
		return nil, fmt.Errorf("dpapi unprotect: %w", err)
	}
	defer func() {
		_, _ = windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	}()
	return blobToBytes(out), nil
}

func bytesToBlob(data []byte) windows.DataBlob {
	if len(data) == 0 {
		return windows.DataBlob{}
	}
	return windows.DataBlob{
		Size: uint32(len(data)),
		Data: &data[0],
	}
}

func blobToBytes(blob windows.DataBlob) []byte {
	if blob.Data == nil || blob.Size == 0 {
		return nil
	}
	size := int(blob.Size)
	src := unsafe.Slice(blob.Data, size)
	out := make([]byte, size)
	copy(out, src)
	return out
}
