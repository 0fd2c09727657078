// ABOUTME: Application wiring for the scpnet CLI
// ABOUTME: Builds the store, session, backend client, identity adapter, and sets

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scpnet/scpnet-client/internal/archive"
	"github.com/scpnet/scpnet-client/internal/config"
	"github.com/scpnet/scpnet-client/internal/identity"
	"github.com/scpnet/scpnet-client/internal/mirror"
	"github.com/scpnet/scpnet-client/internal/remote"
	"github.com/scpnet/scpnet-client/internal/session"
	"github.com/scpnet/scpnet-client/internal/store"
)

// app holds everything a command needs.
type app struct {
	cfg      *config.Config
	prof     *profile
	logger   *slog.Logger
	store    *store.SQLiteStore
	sessions *session.Store
	remote   *remote.Client // nil in local mode
	identity *identity.Adapter

	personnel *mirror.Set[*store.User]
	reports   *mirror.Set[*store.Report]
	general   *mirror.Set[*store.Message]
}

func newApp(ctx context.Context) (*app, error) {
	prof, err := loadProfile()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(prof)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	sessions := session.NewStore(st)
	issuer := session.NewTokenIssuer([]byte(cfg.Auth.JWTSecret))

	var rc *remote.Client
	if cfg.Backend.URL != "" {
		var opts []remote.Option
		if cfg.Backend.RealtimeURL != "" {
			opts = append(opts, remote.WithRealtimeURL(cfg.Backend.RealtimeURL))
		}
		rc = remote.New(cfg.Backend.URL, cfg.Backend.AnonKey, opts...)
	}

	a := &app{
		cfg:      cfg,
		prof:     prof,
		logger:   logger,
		store:    st,
		sessions: sessions,
		remote:   rc,
		identity: identity.New(rc, st, sessions, issuer),
	}

	token := a.sessionToken
	a.personnel = mirror.NewPersonnelSet(rc, st, token, logger)
	a.reports = mirror.NewReportSet(rc, st, token, logger)
	a.general = mirror.NewMessageSet(rc, st, token, logger, "")

	return a, nil
}

func (a *app) Close() {
	a.personnel.Close()
	a.reports.Close()
	a.general.Close()
	a.store.Close()
}

// sessionToken feeds the mirrored sets the current access token.
func (a *app) sessionToken(ctx context.Context) string {
	rec := a.sessions.Current(ctx)
	if rec == nil {
		return ""
	}
	return rec.AccessToken
}

// archiveClient builds the generative-text client on demand so commands
// that never touch it work without credentials.
func (a *app) archiveClient() (*archive.Client, error) {
	key := os.Getenv("SCPNET_ARCHIVE_KEY")
	if key == "" {
		key = a.cfg.Archive.APIKey
	}

	var opts []archive.Option
	if a.cfg.Archive.BaseURL != "" {
		opts = append(opts, archive.WithBaseURL(a.cfg.Archive.BaseURL))
	}
	if a.cfg.Archive.Model != "" {
		opts = append(opts, archive.WithModel(a.cfg.Archive.Model))
	}
	opts = append(opts, archive.WithLogger(a.logger))

	return archive.New(key, opts...)
}

// loadConfig reads the YAML config when present, otherwise synthesizes a
// working local-mode config from the profile.
func loadConfig(prof *profile) (*config.Config, error) {
	path := os.Getenv("SCPNET_CONFIG")
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}

	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Backend: config.BackendConfig{
			URL:     prof.BackendURL,
			AnonKey: prof.AnonKey,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "scpnet.db")},
		Auth:     config.AuthConfig{JWTSecret: prof.LocalSecret},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
