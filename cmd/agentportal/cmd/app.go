package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/agentportal/crm"
	"github.com/jmcleod/agentportal/internal/config"
	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/internal/util"
	"github.com/jmcleod/agentportal/login"
	"github.com/jmcleod/agentportal/prefstore"
	"github.com/jmcleod/agentportal/securestore"
	"github.com/jmcleod/agentportal/session"
	"github.com/jmcleod/agentportal/storage"
	bboltstorage "github.com/jmcleod/agentportal/storage/bbolt"
	"github.com/jmcleod/agentportal/storage/memory"
)

const (
	secureDBFile = "secure.db"
	prefsDBFile  = "prefs.db"
)

// app is the wired session core for one command invocation.
type app struct {
	cfg      config.Config
	log      logr.Logger
	secure   *securestore.Store
	sessions *session.Manager
	auth     *login.Orchestrator
	crm      *crm.Client
	closers  []func() error
}

type appDeps struct {
	prompt login.Prompter
	gate   login.BiometricGate
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile, flagOverrides)
}

// openApp loads configuration, opens both device stores and restores the
// persisted session.
func openApp(cmd *cobra.Command, deps appDeps) (a *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	secureRepo, prefsRepo, passphrase, err := a.openRepositories()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	sec, err := securestore.Open(ctx, secureRepo, passphrase, securestore.WithLogger(log.WithName("securestore")))
	if err != nil {
		return nil, err
	}
	a.secure = sec
	a.closers = append(a.closers, sec.Close)

	a.sessions = session.New(sec, prefstore.New(prefsRepo),
		session.WithLogger(log.WithName("session")),
		session.WithTokenTTL(cfg.Session.TokenTTL))
	a.closers = append(a.closers, func() error { a.sessions.Teardown(); return nil })
	if err := a.sessions.Init(ctx); err != nil {
		// The manager has already reset itself to a logged-out state.
		log.Error(err, "restoring session failed")
	}

	httpClient := &http.Client{Timeout: cfg.Provider.Timeout}
	if cfg.Provider.ClientID != "" {
		a.auth, err = login.New(login.Config{
			TokenURL:     cfg.Provider.TokenURL,
			ClientID:     cfg.Provider.ClientID,
			ClientSecret: cfg.Provider.ClientSecret,
		}, a.sessions, deps.prompt,
			login.WithHTTPClient(httpClient),
			login.WithBiometricGate(deps.gate),
			login.WithLogger(log.WithName("login")))
		if err != nil {
			return nil, err
		}
	}

	a.crm = crm.New(a.sessions,
		crm.WithInstanceURL(cfg.CRM.InstanceURL),
		crm.WithAPIVersion(cfg.CRM.APIVersion),
		crm.WithHTTPClient(httpClient),
		crm.WithLogger(log.WithName("crm")))
	return a, nil
}

func (a *app) openRepositories() (secure, prefs storage.Repository, passphrase string, err error) {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		passphrase = a.cfg.Storage.DevicePassphrase
		if passphrase == "" {
			b, err := util.RandomBytes(32)
			if err != nil {
				return nil, nil, "", err
			}
			passphrase = hex.EncodeToString(b)
		}
		return memory.NewRepository(), memory.NewRepository(), passphrase, nil

	case config.BackendBBolt:
		dir := a.cfg.Storage.DataDir
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, "", fmt.Errorf("failed to create data directory: %w", err)
		}
		opts := &bolt.Options{Timeout: 2 * time.Second}
		sdb, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dir, secureDBFile), opts)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to open secure store: %w", err)
		}
		a.closers = append(a.closers, sdb.Close)
		pdb, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dir, prefsDBFile), opts)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to open preference store: %w", err)
		}
		a.closers = append(a.closers, pdb.Close)
		return sdb, pdb, a.cfg.Storage.DevicePassphrase, nil
	}
	return nil, nil, "", fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
}

// orchestrator returns the login orchestrator, which needs an OAuth client
// registration.
func (a *app) orchestrator() (*login.Orchestrator, error) {
	if a.auth == nil {
		return nil, fmt.Errorf("provider.client_id is not configured (set %sCLIENT_ID)", config.EnvPrefix)
	}
	return a.auth, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app, runs fn and closes it.
func withApp(cmd *cobra.Command, deps appDeps, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
