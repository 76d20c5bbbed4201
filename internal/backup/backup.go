// Package backup keeps each account's private copy of its credentials and
// profile, used to put the account back into the live slot later.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"acctswap/internal/secrets"
	"acctswap/internal/store"
)

var ErrMissing = errors.New("backup bundle missing")

type Bundle struct {
	Credentials []byte
	Profile     []byte
}

type Store struct {
	secrets    secrets.Store
	profileDir string
}

func NewStore(secretStore secrets.Store, dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "configs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Store{secrets: secretStore, profileDir: dir}, nil
}

// Key is the secret store key for an account's credentials.
func Key(number int, email string) string {
	return "account-" + strconv.Itoa(number) + "-" + strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) profilePath(number int, email string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(Key(number, email))
	return filepath.Join(s.profileDir, "profile-"+strings.TrimPrefix(name, "account-")+".json")
}

func (s *Store) Write(number int, email string, b Bundle) error {
	if len(b.Credentials) == 0 {
		return errors.New("refusing to back up empty credentials")
	}
	if err := s.secrets.Set(Key(number, email), b.Credentials); err != nil {
		return fmt.Errorf("back up credentials: %w", err)
	}
	if err := store.WriteFileAtomic(s.profilePath(number, email), b.Profile, 0o600, validProfile); err != nil {
		return fmt.Errorf("back up profile: %w", err)
	}
	return nil
}

// Read returns ErrMissing when either half of the bundle is absent or empty.
func (s *Store) Read(number int, email string) (Bundle, error) {
	creds, err := s.secrets.Get(Key(number, email))
	if errors.Is(err, secrets.ErrNotFound) || (err == nil && len(creds) == 0) {
		return Bundle{}, fmt.Errorf("%w: credentials for account %d", ErrMissing, number)
	}
	if err != nil {
		return Bundle{}, err
	}
	profile, err := os.ReadFile(s.profilePath(number, email))
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(profile) == 0) {
		return Bundle{}, fmt.Errorf("%w: profile for account %d", ErrMissing, number)
	}
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Credentials: creds, Profile: profile}, nil
}

func validProfile(written []byte) error {
	if !json.Valid(written) {
		return errors.New("profile is not valid JSON")
	}
	return nil
}

// Delete removes both halves of the bundle, reporting every failure.
func (s *Store) Delete(number int, email string) error {
	var errs *multierror.Error
	if err := s.secrets.Delete(Key(number, email)); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("delete credentials: %w", err))
	}
	if err := os.Remove(s.profilePath(number, email)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierror.Append(errs, fmt.Errorf("delete profile: %w", err))
	}
	return errs.ErrorOrNil()
}
