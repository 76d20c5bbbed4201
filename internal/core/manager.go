package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"acctswap/internal/backup"
	"acctswap/internal/identity"
	"acctswap/internal/liveauth"
	"acctswap/internal/model"
)

type registryStore interface {
	Load() (model.Registry, error)
	Save(reg model.Registry) error
}

type pendingStore interface {
	Load() (model.PendingSwitch, bool, error)
	Save(marker model.PendingSwitch) error
	Clear() error
}

type backupStore interface {
	Read(number int, email string) (backup.Bundle, error)
	Write(number int, email string, b backup.Bundle) error
	Delete(number int, email string) error
}

type liveState interface {
	Identity() (model.Identity, error)
	Snapshot() (creds, profile []byte, err error)
	Apply(creds []byte, identity json.RawMessage) error
}

type AddAccountInput struct {
	Label string
	// PromptLabel is asked for a label when one is required and none was given.
	PromptLabel func(existing []model.Account) (string, error)
}

type AddResult struct {
	Account model.Account
	Created bool
}

type SwitchResult struct {
	From    *int
	To      model.Account
	Changed bool
}

type Listing struct {
	Accounts []model.Account
	Live     int
	HasLive  bool
}

type Manager struct {
	mu       sync.Mutex
	registry registryStore
	pending  pendingStore
	backups  backupStore
	live     liveState
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewManager(registry registryStore, pending pendingStore, backups backupStore, live liveState, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		registry: registry,
		pending:  pending,
		backups:  backups,
		live:     live,
		log:      logger,
		now:      time.Now,
	}
}

// AddAccount registers the identity currently signed in to the tool, or
// refreshes its backup when it is already managed.
func (m *Manager) AddAccount(ctx context.Context, in AddAccountInput) (AddResult, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return AddResult{}, err
	}
	return m.addLocked(reg, in)
}

func (m *Manager) addLocked(reg model.Registry, in AddAccountInput) (AddResult, error) {
	live, err := m.live.Identity()
	if err != nil {
		return AddResult{}, err
	}
	if live.IsZero() {
		return AddResult{}, ErrNoLiveIdentity
	}
	if !identity.ValidEmail(live.EmailAddress) {
		return AddResult{}, validationf("signed-in email %q is not valid", live.EmailAddress)
	}
	creds, profile, err := m.live.Snapshot()
	if err != nil {
		return AddResult{}, fmt.Errorf("read live state: %w", err)
	}
	label := strings.TrimSpace(in.Label)

	if existing, ok := identity.Match(reg, live); ok {
		if label != "" && label != existing.Label {
			if err := checkLabelUnique(reg, existing.Email, label, existing.Number); err != nil {
				return AddResult{}, err
			}
			existing.Label = label
		}
		existing.OrganizationName = firstNonEmpty(live.OrganizationName, existing.OrganizationName)
		if err := m.backups.Write(existing.Number, existing.Email, backup.Bundle{Credentials: creds, Profile: profile}); err != nil {
			return AddResult{}, fmt.Errorf("%w: %v", ErrPersistBackup, err)
		}
		reg.Put(existing)
		reg.SetActive(existing.Number)
		if err := m.registry.Save(reg); err != nil {
			return AddResult{}, fmt.Errorf("%w: %v", ErrPersistState, err)
		}
		m.log.WithField("account", existing.Number).Info("refreshed existing account")
		return AddResult{Account: existing}, nil
	}

	same := identity.SameEmail(reg, live.EmailAddress)
	if needsLabel(same, live) {
		if label == "" && in.PromptLabel != nil {
			label, err = in.PromptLabel(same)
			if err != nil {
				return AddResult{}, err
			}
			label = strings.TrimSpace(label)
		}
		if label == "" {
			return AddResult{}, validationf("%s is already managed as account %d; pass --label to tell them apart", live.EmailAddress, same[0].Number)
		}
	}
	if label != "" {
		if err := checkLabelUnique(reg, live.EmailAddress, label, 0); err != nil {
			return AddResult{}, err
		}
	}

	acct := model.AccountFromIdentity(reg.NextNumber(), live, label, m.now())
	if err := m.backups.Write(acct.Number, acct.Email, backup.Bundle{Credentials: creds, Profile: profile}); err != nil {
		return AddResult{}, fmt.Errorf("%w: %v", ErrPersistBackup, err)
	}
	reg.Put(acct)
	reg.SetActive(acct.Number)
	if err := m.registry.Save(reg); err != nil {
		if rollbackErr := m.backups.Delete(acct.Number, acct.Email); rollbackErr != nil {
			return AddResult{}, fmt.Errorf("%w: %v (rollback failed: %v)", ErrPersistState, err, rollbackErr)
		}
		return AddResult{}, fmt.Errorf("%w: %v", ErrPersistState, err)
	}
	m.log.WithFields(logrus.Fields{"account": acct.Number, "email": acct.Email}).Info("added account")
	return AddResult{Account: acct, Created: true}, nil
}

// needsLabel reports whether a new identity with this email could not be told
// apart from an existing account by organization alone.
func needsLabel(same []model.Account, live model.Identity) bool {
	for _, acct := range same {
		if strings.TrimSpace(acct.OrganizationUUID) == strings.TrimSpace(live.OrganizationUUID) {
			return true
		}
	}
	return false
}

func checkLabelUnique(reg model.Registry, email, label string, except int) error {
	for _, acct := range identity.SameEmail(reg, email) {
		if acct.Number != except && strings.EqualFold(acct.Label, label) {
			return validationf("label %q is already used by account %d", label, acct.Number)
		}
	}
	return nil
}

// Resolve turns an operator reference into an existing account number.
func (m *Manager) Resolve(ctx context.Context, reference string) (model.Account, error) {
	_ = ctx
	reg, err := m.registry.Load()
	if err != nil {
		return model.Account{}, err
	}
	return resolveExisting(reg, reference)
}

func resolveExisting(reg model.Registry, reference string) (model.Account, error) {
	res, err := identity.Resolve(reg, reference)
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch res.Kind {
	case identity.Ambiguous:
		return model.Account{}, &AmbiguousError{Reference: strings.TrimSpace(reference), Candidates: res.Candidates}
	case identity.NotFound:
		return model.Account{}, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(reference))
	}
	acct, ok := reg.Account(res.Number)
	if !ok {
		return model.Account{}, fmt.Errorf("%w: %d", ErrNotFound, res.Number)
	}
	return acct, nil
}

func (m *Manager) RemoveAccount(ctx context.Context, reference string) (model.Account, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return model.Account{}, err
	}
	acct, err := resolveExisting(reg, reference)
	if err != nil {
		return model.Account{}, err
	}

	reg.Remove(acct.Number)
	if err := m.registry.Save(reg); err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", ErrPersistState, err)
	}
	if err := m.backups.Delete(acct.Number, acct.Email); err != nil {
		return acct, fmt.Errorf("account %d removed but its backup could not be deleted: %w", acct.Number, err)
	}
	m.log.WithField("account", acct.Number).Info("removed account")
	return acct, nil
}

func (m *Manager) ListAccounts(ctx context.Context) (Listing, error) {
	_ = ctx
	reg, err := m.registry.Load()
	if err != nil {
		return Listing{}, err
	}
	live, err := m.live.Identity()
	if err != nil {
		return Listing{}, err
	}
	current, ok := identity.Active(reg, live)
	return Listing{Accounts: reg.Ordered(), Live: current, HasLive: ok}, nil
}

// Sequence returns the rotation order.
func (m *Manager) Sequence(ctx context.Context) ([]int, error) {
	_ = ctx
	reg, err := m.registry.Load()
	if err != nil {
		return nil, err
	}
	return slices.Clone(reg.Sequence), nil
}

// ActiveAccount returns the account that is live right now, if it is managed.
func (m *Manager) ActiveAccount(ctx context.Context) (int, bool, error) {
	_ = ctx
	reg, err := m.registry.Load()
	if err != nil {
		return 0, false, err
	}
	live, err := m.live.Identity()
	if err != nil {
		return 0, false, err
	}
	n, ok := identity.Active(reg, live)
	return n, ok, nil
}

// SwitchTo makes target the live account. Nothing live is written until the
// target's backup has been loaded and validated.
func (m *Manager) SwitchTo(ctx context.Context, target int) (SwitchResult, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return SwitchResult{}, err
	}
	if _, ok := reg.Account(target); !ok {
		return SwitchResult{}, fmt.Errorf("%w: %d", ErrNotFound, target)
	}
	return m.switchLocked(reg, target)
}

func (m *Manager) switchLocked(reg model.Registry, target int) (SwitchResult, error) {
	targetAcct, _ := reg.Account(target)
	log := m.log.WithField("account", target)

	live, err := m.live.Identity()
	if err != nil {
		return SwitchResult{}, fmt.Errorf("read live identity: %w", err)
	}
	result := SwitchResult{To: targetAcct}
	current, hasCurrent := identity.Active(reg, live)
	if hasCurrent {
		from := current
		result.From = &from
	}
	// an unmanaged identity is never written over a managed account's backup
	_, managed := identity.Match(reg, live)
	backupCurrent := hasCurrent && (managed || live.IsZero())

	creds, profile, err := m.live.Snapshot()
	switch {
	case errors.Is(err, liveauth.ErrCredentialsNotFound), errors.Is(err, liveauth.ErrProfileNotFound):
		log.Warn("no live state to back up")
	case err != nil:
		return SwitchResult{}, fmt.Errorf("read live state: %w", err)
	case backupCurrent:
		currentAcct, _ := reg.Account(current)
		if err := m.backups.Write(current, currentAcct.Email, backup.Bundle{Credentials: creds, Profile: profile}); err != nil {
			return SwitchResult{}, fmt.Errorf("%w: account %d: %v", ErrPersistBackup, current, err)
		}
	default:
		log.WithField("email", live.EmailAddress).Warn("live account is not managed; its state is not backed up")
	}

	bundle, err := m.backups.Read(target, targetAcct.Email)
	if errors.Is(err, backup.ErrMissing) {
		return SwitchResult{}, fmt.Errorf("%w: %v", ErrMissingBackup, err)
	}
	if err != nil {
		return SwitchResult{}, err
	}
	backupProfile, err := liveauth.ParseProfile(bundle.Profile)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("%w: account %d: %v", ErrInvalidBackup, target, err)
	}
	section, err := backupProfile.IdentitySection()
	if err != nil {
		return SwitchResult{}, fmt.Errorf("%w: account %d: %v", ErrInvalidBackup, target, err)
	}

	marker := model.PendingSwitch{ID: uuid.NewString(), From: result.From, To: target, StartedAt: m.now().UTC()}
	if err := m.pending.Save(marker); err != nil {
		return SwitchResult{}, fmt.Errorf("%w: %v", ErrPersistState, err)
	}
	if err := m.live.Apply(bundle.Credentials, section); err != nil {
		return SwitchResult{}, fmt.Errorf("apply account %d: %w", target, err)
	}
	reg.SetActive(target)
	if err := m.registry.Save(reg); err != nil {
		return SwitchResult{}, fmt.Errorf("%w: %v", ErrPersistState, err)
	}
	if err := m.pending.Clear(); err != nil {
		log.WithError(err).Warn("could not clear pending switch marker")
	}

	result.Changed = !managed || current != target
	log.WithField("switch", marker.ID).Info("switched account")
	return result, nil
}

// SwitchNext rotates to the account after the live one in sequence order.
func (m *Manager) SwitchNext(ctx context.Context) (SwitchResult, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry.Load()
	if err != nil {
		return SwitchResult{}, err
	}
	live, err := m.live.Identity()
	if err != nil {
		return SwitchResult{}, err
	}

	if _, managed := identity.Match(reg, live); !managed && !live.IsZero() {
		added, err := m.addLocked(reg, AddAccountInput{})
		if err != nil {
			return SwitchResult{}, err
		}
		return SwitchResult{To: added.Account}, ErrReinvokeRotation
	}
	if len(reg.Sequence) == 0 {
		return SwitchResult{}, fmt.Errorf("%w: no accounts are managed yet", ErrNotFound)
	}

	next := reg.Sequence[0]
	if current, ok := identity.Active(reg, live); ok {
		if idx := slices.Index(reg.Sequence, current); idx >= 0 {
			next = reg.Sequence[(idx+1)%len(reg.Sequence)]
		}
	}
	return m.switchLocked(reg, next)
}

// Reconcile settles a switch interrupted between the live writes and the
// registry update, using the live identity as the source of truth.
func (m *Manager) Reconcile(ctx context.Context) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	marker, ok, err := m.pending.Load()
	if err != nil || !ok {
		return false, err
	}
	log := m.log.WithField("switch", marker.ID)

	reg, err := m.registry.Load()
	if err != nil {
		return false, err
	}
	live, err := m.live.Identity()
	if err != nil {
		return false, err
	}

	settled := 0
	if acct, ok := reg.Account(marker.To); ok && acct.Matches(live) {
		settled = marker.To
	} else if marker.From != nil {
		if acct, ok := reg.Account(*marker.From); ok && acct.Matches(live) {
			settled = *marker.From
		}
	}

	if settled == 0 {
		log.Warn("interrupted switch left an unknown account live; registry left unchanged")
	} else if cached, ok := reg.Active(); !ok || cached != settled {
		reg.SetActive(settled)
		if err := m.registry.Save(reg); err != nil {
			return false, fmt.Errorf("%w: %v", ErrPersistState, err)
		}
		log.WithField("account", settled).Warn("recovered interrupted switch")
	}
	return true, m.pending.Clear()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
