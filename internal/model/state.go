package model

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"
)

type Registry struct {
	ActiveAccountNumber *int               `json:"activeAccountNumber"`
	LastUpdated         time.Time          `json:"lastUpdated"`
	Sequence            []int              `json:"sequence"`
	Accounts            map[string]Account `json:"accounts"`
}

func DefaultRegistry() Registry {
	return Registry{
		Sequence: []int{},
		Accounts: map[string]Account{},
	}
}

func accountKey(number int) string {
	return strconv.Itoa(number)
}

// Account returns the account with the given number.
func (r Registry) Account(number int) (Account, bool) {
	acct, ok := r.Accounts[accountKey(number)]
	if ok {
		acct.Number = number
	}
	return acct, ok
}

// Ordered returns all accounts in rotation order.
func (r Registry) Ordered() []Account {
	out := make([]Account, 0, len(r.Sequence))
	for _, n := range r.Sequence {
		if acct, ok := r.Account(n); ok {
			out = append(out, acct)
		}
	}
	return out
}

func (r *Registry) Put(acct Account) {
	if r.Accounts == nil {
		r.Accounts = map[string]Account{}
	}
	key := accountKey(acct.Number)
	if _, exists := r.Accounts[key]; !exists && !slices.Contains(r.Sequence, acct.Number) {
		r.Sequence = append(r.Sequence, acct.Number)
	}
	r.Accounts[key] = acct
}

func (r *Registry) Remove(number int) {
	delete(r.Accounts, accountKey(number))
	r.Sequence = slices.DeleteFunc(r.Sequence, func(n int) bool { return n == number })
	if r.ActiveAccountNumber != nil && *r.ActiveAccountNumber == number {
		r.ActiveAccountNumber = nil
	}
}

func (r *Registry) SetActive(number int) {
	n := number
	r.ActiveAccountNumber = &n
}

// Active returns the cached active account number.
func (r Registry) Active() (int, bool) {
	if r.ActiveAccountNumber == nil {
		return 0, false
	}
	return *r.ActiveAccountNumber, true
}

func (r Registry) NextNumber() int {
	highest := 0
	for key := range r.Accounts {
		if n, err := strconv.Atoi(key); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Validate checks the sequence/accounts invariants.
func (r Registry) Validate() error {
	seen := make(map[int]struct{}, len(r.Sequence))
	for _, n := range r.Sequence {
		if n <= 0 {
			return fmt.Errorf("sequence contains invalid account number %d", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("sequence contains account %d twice", n)
		}
		if _, ok := r.Accounts[accountKey(n)]; !ok {
			return fmt.Errorf("sequence references unknown account %d", n)
		}
		seen[n] = struct{}{}
	}
	keys := make([]string, 0, len(r.Accounts))
	for key := range r.Accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		n, err := strconv.Atoi(key)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid account key %q", key)
		}
		if _, ok := seen[n]; !ok {
			return fmt.Errorf("account %d is missing from sequence", n)
		}
		if r.Accounts[key].Email == "" {
			return fmt.Errorf("account %d has no email", n)
		}
	}
	return nil
}
