package liveauth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/zalando/go-keyring"

	"acctswap/internal/store"
)

// ToolKeychainService is the vault entry the external tool reads on macOS.
const ToolKeychainService = "Claude Code-credentials"

var (
	ErrCredentialsNotFound = errors.New("live credentials not found")
	ErrEmptyCredentials    = errors.New("refusing to write empty credentials")
)

// CredentialSlot is where the external tool reads its active credentials.
type CredentialSlot interface {
	Read() ([]byte, error)
	Write(blob []byte) error
	Describe() string
}

type FileSlot struct {
	path string
}

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: strings.TrimSpace(path)}
}

func (s *FileSlot) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write replaces the credentials file in one rename, so the tool never
// reads a half-written blob.
func (s *FileSlot) Write(blob []byte) error {
	if err := store.WriteFileAtomic(s.path, blob, 0o600, nonEmpty); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func nonEmpty(written []byte) error {
	if len(bytes.TrimSpace(written)) == 0 {
		return ErrEmptyCredentials
	}
	return nil
}

func (s *FileSlot) Describe() string {
	return s.path
}

type KeyringSlot struct {
	service string
	account string
}

func NewKeyringSlot(service string) *KeyringSlot {
	account := os.Getenv("USER")
	if u, err := user.Current(); err == nil && u.Username != "" {
		account = u.Username
	}
	return &KeyringSlot{service: service, account: account}
}

func (s *KeyringSlot) Read() ([]byte, error) {
	value, err := keyring.Get(s.service, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *KeyringSlot) Write(blob []byte) error {
	return keyring.Set(s.service, s.account, string(blob))
}

func (s *KeyringSlot) Describe() string {
	return "keychain:" + s.service
}
