package model

import (
	"strings"
	"time"
)

// Account is one managed identity of the external tool.
type Account struct {
	Number           int       `json:"-"`
	Email            string    `json:"email"`
	IdentityUUID     string    `json:"uuid"`
	OrganizationUUID string    `json:"organizationUuid,omitempty"`
	OrganizationName string    `json:"organizationName,omitempty"`
	Label            string    `json:"label,omitempty"`
	AddedAt          time.Time `json:"added"`
}

// Identity is the identity section the external tool keeps in its profile.
type Identity struct {
	AccountUUID      string `json:"accountUuid,omitempty"`
	EmailAddress     string `json:"emailAddress,omitempty"`
	OrganizationUUID string `json:"organizationUuid,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
}

func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.AccountUUID) == "" && strings.TrimSpace(i.EmailAddress) == ""
}

// Matches reports whether the account carries the same identity key.
// Accounts without a uuid fall back to email plus organization.
func (a Account) Matches(id Identity) bool {
	if strings.TrimSpace(a.OrganizationUUID) != strings.TrimSpace(id.OrganizationUUID) {
		return false
	}
	if strings.TrimSpace(a.IdentityUUID) == "" {
		return strings.EqualFold(a.Email, strings.TrimSpace(id.EmailAddress))
	}
	return a.IdentityUUID == strings.TrimSpace(id.AccountUUID)
}

// Team reports whether the account belongs to an organization context.
func (a Account) Team() bool {
	return strings.TrimSpace(a.OrganizationUUID) != ""
}

// DisplayName is the email with the label or organization appended when present.
func (a Account) DisplayName() string {
	name := a.Email
	switch {
	case a.Label != "":
		name += " [" + a.Label + "]"
	case a.OrganizationName != "":
		name += " [" + a.OrganizationName + "]"
	}
	return name
}

func AccountFromIdentity(number int, id Identity, label string, now time.Time) Account {
	return Account{
		Number:           number,
		Email:            strings.TrimSpace(id.EmailAddress),
		IdentityUUID:     strings.TrimSpace(id.AccountUUID),
		OrganizationUUID: strings.TrimSpace(id.OrganizationUUID),
		OrganizationName: strings.TrimSpace(id.OrganizationName),
		Label:            strings.TrimSpace(label),
		AddedAt:          now.UTC(),
	}
}
