// Package identity maps operator references and live identities to account numbers.
package identity

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"acctswap/internal/model"
)

type Kind int

const (
	NotFound Kind = iota
	Unique
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not-found"
	}
}

// Resolution is the outcome of resolving a reference. Number is set only for
// Unique; Candidates only for Ambiguous.
type Resolution struct {
	Kind       Kind
	Number     int
	Candidates []model.Account
}

var ErrInvalidReference = errors.New("reference must be an account number or a valid email")

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// Resolve maps a numeric id or an email to an account number. Numeric
// references are returned as-is; the caller checks they exist.
func Resolve(reg model.Registry, reference string) (Resolution, error) {
	ref := strings.TrimSpace(reference)
	if n, err := strconv.Atoi(ref); err == nil {
		if n <= 0 {
			return Resolution{}, ErrInvalidReference
		}
		return Resolution{Kind: Unique, Number: n}, nil
	}
	if !ValidEmail(ref) {
		return Resolution{}, ErrInvalidReference
	}

	var matches []model.Account
	for _, acct := range reg.Ordered() {
		if strings.EqualFold(acct.Email, ref) {
			matches = append(matches, acct)
		}
	}
	switch len(matches) {
	case 0:
		return Resolution{Kind: NotFound}, nil
	case 1:
		return Resolution{Kind: Unique, Number: matches[0].Number}, nil
	default:
		return Resolution{Kind: Ambiguous, Candidates: matches}, nil
	}
}

// Match finds the managed account whose identity key equals the live identity.
func Match(reg model.Registry, live model.Identity) (model.Account, bool) {
	if live.IsZero() {
		return model.Account{}, false
	}
	for _, acct := range reg.Ordered() {
		if acct.Matches(live) {
			return acct, true
		}
	}
	return model.Account{}, false
}

// Active returns the account believed live: the one matching the live
// identity, else the registry's cached active number.
func Active(reg model.Registry, live model.Identity) (int, bool) {
	if acct, ok := Match(reg, live); ok {
		return acct.Number, true
	}
	n, ok := reg.Active()
	if !ok {
		return 0, false
	}
	if _, exists := reg.Account(n); !exists {
		return 0, false
	}
	return n, true
}

// SameEmail returns accounts sharing the identity's email, in rotation order.
func SameEmail(reg model.Registry, email string) []model.Account {
	var out []model.Account
	for _, acct := range reg.Ordered() {
		if strings.EqualFold(acct.Email, strings.TrimSpace(email)) {
			out = append(out, acct)
		}
	}
	return out
}
