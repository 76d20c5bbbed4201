// Package app assembles the stores, live state and account manager shared by
// both binaries.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"acctswap/internal/backup"
	"acctswap/internal/config"
	"acctswap/internal/core"
	"acctswap/internal/liveauth"
	"acctswap/internal/secrets"
	"acctswap/internal/store"
)

type Env struct {
	Config   config.Config
	Manager  *core.Manager
	Registry *store.RegistryStore
	States   *store.SchedulerStateStore
	Live     *liveauth.Live
	Log      logrus.FieldLogger
}

// Open wires everything against the platform defaults, honouring any path
// overrides in cfg.
func Open(cfg config.Config, logger logrus.FieldLogger) (*Env, error) {
	secretStore, err := secrets.NewDefaultStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}
	credPath, err := cfg.ResolveCredentialsPath()
	if err != nil {
		return nil, fmt.Errorf("resolve credentials path: %w", err)
	}
	profilePath, err := cfg.ResolveProfilePath()
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}

	var slot liveauth.CredentialSlot
	if cfg.CredentialsPath != "" {
		slot = liveauth.NewFileSlot(credPath)
	} else {
		slot = liveauth.NewDefaultCredentialSlot(credPath)
	}
	live := liveauth.New(slot, liveauth.NewProfileFile(profilePath))
	return Assemble(cfg, secretStore, live, logger)
}

// Assemble builds the environment from an explicit secret store and live
// state.
func Assemble(cfg config.Config, secretStore secrets.Store, live *liveauth.Live, logger logrus.FieldLogger) (*Env, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registry, err := store.NewRegistryStore(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}
	backups, err := backup.NewStore(secretStore, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("init backups: %w", err)
	}
	pending := store.NewPendingStore(cfg.Dir)
	return &Env{
		Config:   cfg,
		Manager:  core.NewManager(registry, pending, backups, live, logger),
		Registry: registry,
		States:   store.NewSchedulerStateStore(cfg.Dir),
		Live:     live,
		Log:      logger,
	}, nil
}
