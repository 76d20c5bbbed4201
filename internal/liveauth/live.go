package liveauth

import (
	"encoding/json"
	"errors"

	"acctswap/internal/model"
)

// Live groups the two pieces of state the external tool runs from.
type Live struct {
	Credentials CredentialSlot
	Profile     *ProfileFile
}

func New(creds CredentialSlot, profile *ProfileFile) *Live {
	return &Live{Credentials: creds, Profile: profile}
}

// Identity returns the identity signed in right now. A missing profile or
// identity section yields a zero Identity and no error.
func (l *Live) Identity() (model.Identity, error) {
	doc, err := l.Profile.Read()
	if errors.Is(err, ErrProfileNotFound) {
		return model.Identity{}, nil
	}
	if err != nil {
		return model.Identity{}, err
	}
	id, err := doc.Identity()
	if errors.Is(err, ErrNoIdentity) {
		return model.Identity{}, nil
	}
	return id, err
}

// Snapshot reads the live credentials and profile as opaque blobs.
func (l *Live) Snapshot() (creds, profile []byte, err error) {
	creds, err = l.Credentials.Read()
	if err != nil {
		return nil, nil, err
	}
	profile, err = l.Profile.ReadRaw()
	if err != nil {
		return nil, nil, err
	}
	return creds, profile, nil
}

// Apply writes target credentials then merges the identity section.
func (l *Live) Apply(creds []byte, identity json.RawMessage) error {
	if err := l.Credentials.Write(creds); err != nil {
		return err
	}
	return l.Profile.ApplyIdentity(identity)
}
