package core

import (
	"errors"
	"fmt"
	"strings"

	"acctswap/internal/model"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("account not found")
	ErrMissingBackup    = errors.New("backup missing")
	ErrInvalidBackup    = errors.New("backup invalid")
	ErrNoLiveIdentity   = errors.New("no account is signed in to the tool")
	ErrReinvokeRotation = errors.New("current account was not managed and has been added; run switch again")
	ErrPersistBackup    = errors.New("persist backup failed")
	ErrPersistState     = errors.New("persist state failed")
)

// AmbiguousError lists every account matching a reference that is not unique.
type AmbiguousError struct {
	Reference  string
	Candidates []model.Account
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q matches %d accounts; use the account number instead:", e.Reference, len(e.Candidates))
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\n  %d: %s", c.Number, c.DisplayName())
	}
	return b.String()
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
