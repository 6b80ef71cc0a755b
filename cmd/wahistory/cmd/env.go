package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesm/wahistory/internal/archive"
	"github.com/wesm/wahistory/internal/importer"
	"github.com/wesm/wahistory/internal/media"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/vault"
	"github.com/wesm/wahistory/internal/whatsapp"
)

// fingerprintKey is the settings key holding the vault key fingerprint.
const fingerprintKey = "vault.fingerprint"

// openStore opens and migrates the configured database.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	res, err := s.Migrate()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if res.Changed {
		logger.Info("database migrated", "version", res.Version)
	}
	return s, nil
}

// unlockVault derives the session key from the configured passphrase. The
// first key used is recorded by fingerprint; later keys must match it. With
// no passphrase the session stays locked and media is kept unencrypted or
// left out.
func unlockVault(ctx context.Context, s *store.Store) (*vault.Session, error) {
	session := &vault.Session{}
	pass := cfg.Passphrase()
	if pass == "" {
		logger.Debug("vault locked", "env", cfg.Vault.PassphraseEnv)
		return session, nil
	}

	key := vault.DeriveKey(pass, cfg.Vault.Salt, cfg.Vault.Iterations)
	fp, ok, err := s.GetSetting(ctx, fingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("read vault fingerprint: %w", err)
	}
	if !ok {
		if err := s.SetSetting(ctx, fingerprintKey, key.Fingerprint()); err != nil {
			return nil, fmt.Errorf("record vault fingerprint: %w", err)
		}
		logger.Info("vault key recorded")
	} else if err := vault.Verify(key, fp); err != nil {
		if errors.Is(err, vault.ErrWrongPassphrase) {
			return nil, fmt.Errorf("%s does not match the passphrase this history was created with", cfg.Vault.PassphraseEnv)
		}
		return nil, err
	}
	session.Set(key)
	return session, nil
}

// newFetcher returns the fetcher for server paths under dir: another
// instance's read endpoint when [fetch] base_url is set, else the local
// directory.
func newFetcher(dir string) source.Fetcher {
	if cfg.Fetch.BaseURL != "" {
		return source.NewHTTPFetcher(cfg.Fetch.BaseURL, cfg.Fetch.APIKey, cfg.Fetch.RateLimitQPS, cfg.FetchTimeout())
	}
	return source.DirFetcher{Root: dir}
}

// mediaStore is the chat-scoped media directory.
func mediaStore() *media.LocalStore {
	return &media.LocalStore{Dir: cfg.MediaDir()}
}

// newExtractor builds the load, parse and media pipeline for exports under
// dir.
func newExtractor(dir string, session *vault.Session, progress importer.Progress) *importer.Extractor {
	limits := archive.DefaultLimits()
	if cfg.Import.MaxMediaBytes > 0 {
		limits.MaxEntryBytes = cfg.Import.MaxMediaBytes
	}
	loader := source.NewLoader(newFetcher(dir), limits, logger)
	copier := &media.FSCopier{RawRoot: dir, MediaDir: cfg.MediaDir(), MaxBytes: cfg.Import.MaxMediaBytes}
	resolver := media.NewResolver(loader, copier, mediaStore(), session, logger)
	parser := whatsapp.NewParser(whatsapp.WithLocation(cfg.Location()), whatsapp.WithLogger(logger))

	ex := importer.NewExtractor(loader, parser, resolver).WithLogger(logger)
	ex.BatchSize = cfg.Import.BatchSize
	ex.Concurrency = cfg.Import.Concurrency
	if progress != nil {
		ex.WithProgress(progress)
	}
	return ex
}

// scanRaw lists the exports waiting in the raw directory.
func scanRaw() ([]source.ImportFile, error) {
	return importer.ScanDir(cfg.Data.RawDir)
}
