package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dipcp-go/internal/config"
	"dipcp-go/internal/database"
	"dipcp-go/internal/dip"
	"dipcp-go/internal/encryption"
	"dipcp-go/internal/github"
	"dipcp-go/internal/match"
	"dipcp-go/internal/metrics"
	"dipcp-go/internal/vault"
)

// TokenEnv, when set, is used instead of the sealed token in the cache.
const TokenEnv = "GITHUB_TOKEN"

// Options are the per-invocation choices of the CLI.
type Options struct {
	// Passphrase is asked for only when a sealed token has to be unlocked.
	// Nil means the command runs anonymously unless TokenEnv is set.
	Passphrase func() (string, error)
	// Chooser resolves ambiguous link targets. Nil leaves them alone.
	Chooser dip.Chooser
	// SkipSnapshotCheck opens the cache even when the vault holds a newer
	// snapshot, so it can be restored.
	SkipSnapshotCheck bool
	// Verbose logs at debug level.
	Verbose bool
}

// App is the application layer between the CLI and the synchronizer.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the cache lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     dip.Store
	vault     vault.Vault // nil when no vault is configured
	sealer    dip.Sealer
	remote    dip.Remote
	newRemote func(token string) (dip.Remote, error)
	session   dip.Session
	sync      *dip.Synchronizer
	linker    *dip.Linker
	chooser   dip.Chooser
	ignore    *match.Matcher
	metrics   *metrics.Collector
	registry  *prometheus.Registry
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
	clock     dip.Clock
	ids       dip.IDGenerator
}

// components are the constructed dependencies handed to assemble.
type components struct {
	store     dip.Store
	vault     vault.Vault
	sealer    dip.Sealer
	newRemote func(token string, quota github.QuotaObserver) (dip.Remote, error)
	logger    *slog.Logger
	logFile   *os.File
	clock     dip.Clock
	ids       dip.IDGenerator
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Submit", "OpenWork").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*App, error) {
	op := NewOperation(operation, time.Now())

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, op.ID(), level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Cache)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if err := store.CheckMigrations(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("cache schema out of date: %w", err)
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	var v vault.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			store.Close()
			logFile.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	newRemote := func(token string, quota github.QuotaObserver) (dip.Remote, error) {
		return github.NewClient(token, github.Options{
			APIURL:         cfg.GitHub.APIURL,
			RawURL:         cfg.GitHub.RawURL,
			Branch:         cfg.GitHub.Branch,
			CommitterEmail: cfg.GitHub.CommitterEmail,
			RequestsPerSec: cfg.GitHub.RequestsPerSec,
			Burst:          cfg.GitHub.Burst,
			Logger:         logger,
			Quota:          quota,
		})
	}

	a, err := assemble(ctx, cfg, op, components{
		store:     store,
		vault:     v,
		sealer:    sealer,
		newRemote: newRemote,
		logger:    logger,
		logFile:   logFile,
		clock:     dip.RealClock{},
		ids:       dip.UUIDGenerator{},
	}, opts)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, err
	}
	return a, nil
}

// assemble resolves the session and wires the synchronizer. It does not
// close the components on error.
func assemble(ctx context.Context, cfg *config.Config, op *Operation, c components, opts Options) (*App, error) {
	ignore, err := loadIgnore(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	a := &App{
		cfg:      cfg,
		store:    c.store,
		vault:    c.vault,
		sealer:   c.sealer,
		chooser:  opts.Chooser,
		ignore:   ignore,
		metrics:  collector,
		registry: registry,
		op:       op,
		logger:   c.logger,
		logFile:  c.logFile,
		clock:    c.clock,
		ids:      c.ids,
	}
	a.newRemote = func(token string) (dip.Remote, error) {
		return c.newRemote(token, collector)
	}

	token, err := resolveToken(a.store, a.sealer, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	a.remote, err = a.newRemote(token)
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}

	a.session, err = a.resolveSession(ctx, token != "")
	if err != nil {
		return nil, err
	}

	if !opts.SkipSnapshotCheck {
		if err := a.checkSnapshot(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.observePending(); err != nil {
		return nil, err
	}
	a.wire()
	return a, nil
}

// loadIgnore merges the configured ignore patterns with the ignore file in
// the data directory.
func loadIgnore(cfg *config.Config) (*match.Matcher, error) {
	patterns := append([]string(nil), cfg.Sync.Ignore...)
	if cfg.BaseDir != "" {
		extra, err := match.ReadFile(filepath.Join(cfg.BaseDir, match.IgnoreFileName))
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, extra...)
	}
	return match.New(patterns), nil
}

// wire (re)builds the synchronizer and linker around the current store,
// remote and session.
func (a *App) wire() {
	a.sync = dip.NewSynchronizer(a.store, a.remote, a.session, dip.SyncOptions{
		ContentDir:    a.cfg.Sync.ContentDir,
		Workers:       a.cfg.Sync.Workers,
		AlwaysRefresh: a.cfg.Sync.AlwaysRefresh,
		Ignore:        a.ignore,
	}, a.logger, a.clock, a.ids)
	a.linker = dip.NewLinker(a.sync, a.chooser)
}

// observePending keeps the pending gauge in step with a newly opened store.
func (a *App) observePending() error {
	pending, err := a.store.ListPending("")
	if err != nil {
		return fmt.Errorf("counting pending changes: %w", err)
	}
	a.metrics.SetPending(len(pending))
	a.store.OnPendingChange(a.metrics.PendingChanged)
	return nil
}

// resolveSession identifies the user. The login is cached in settings and
// looked up remotely only when missing.
func (a *App) resolveSession(ctx context.Context, authenticated bool) (dip.Session, error) {
	login, err := a.store.GetSetting(dip.SettingLogin)
	if err != nil {
		return dip.Session{}, fmt.Errorf("reading login: %w", err)
	}
	email, err := a.store.GetSetting(dip.SettingEmail)
	if err != nil {
		return dip.Session{}, fmt.Errorf("reading email: %w", err)
	}
	if len(login) > 0 || !authenticated {
		return a.newSession(string(login), string(email)), nil
	}

	u, err := a.remote.CurrentUser(ctx)
	if err != nil {
		return dip.Session{}, fmt.Errorf("identifying user: %w", err)
	}
	if err := a.rememberUser(u); err != nil {
		return dip.Session{}, err
	}
	return a.newSession(u.Login, u.Email), nil
}

func (a *App) newSession(login, email string) dip.Session {
	if a.cfg.GitHub.CommitterEmail != "" {
		email = a.cfg.GitHub.CommitterEmail
	}
	return dip.Session{User: login, Email: email}
}

func (a *App) rememberUser(u *dip.User) error {
	if err := a.store.PutSetting(dip.SettingLogin, []byte(u.Login)); err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	if err := a.store.PutSetting(dip.SettingEmail, []byte(u.Email)); err != nil {
		return fmt.Errorf("recording email: %w", err)
	}
	return nil
}

// resolveToken returns the access token: TokenEnv when set, else the sealed
// token in the cache. An empty token means anonymous access.
func resolveToken(store dip.Store, sealer dip.Sealer, passphrase func() (string, error)) (string, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}
	sealed, err := store.GetSetting(dip.SettingToken)
	if err != nil {
		return "", fmt.Errorf("reading stored token: %w", err)
	}
	if len(sealed) == 0 || passphrase == nil {
		return "", nil
	}

	pass, err := passphrase()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	opener, err := sealer.Unlock(pass)
	if err != nil {
		return "", fmt.Errorf("unlocking token: %w", err)
	}
	token, err := opener.Open(string(sealed))
	if err != nil {
		return "", fmt.Errorf("opening stored token: %w", err)
	}
	return string(token), nil
}

// Session returns who the app acts for.
func (a *App) Session() dip.Session { return a.session }

// Operation returns the operation being run.
func (a *App) Operation() *Operation { return a.op }

// AuthLogin verifies token against the remote host, seals it with the
// passphrase and stores it. The first login sets up the key pair.
func (a *App) AuthLogin(ctx context.Context, token, passphrase string) (*dip.User, error) {
	if token == "" {
		return nil, dip.Validationf("login", "empty token")
	}
	if a.sealer.IsConfigured() {
		if _, err := a.sealer.Unlock(passphrase); err != nil {
			return nil, err
		}
	} else if err := a.sealer.Setup(passphrase); err != nil {
		return nil, fmt.Errorf("setting up token key: %w", err)
	}

	remote, err := a.newRemote(token)
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}
	u, err := remote.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	sealed, err := a.sealer.Seal([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("sealing token: %w", err)
	}
	a.op.MarkMutated()
	if err := a.store.PutSetting(dip.SettingToken, []byte(sealed)); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	if err := a.rememberUser(u); err != nil {
		return nil, err
	}

	a.remote = remote
	a.session = a.newSession(u.Login, u.Email)
	a.wire()
	a.logger.Info("signed in", "login", u.Login)
	return u, nil
}

// localSnapshotVersion returns the version of the snapshot the cache was
// last uploaded as or restored from.
func (a *App) localSnapshotVersion() (int64, error) {
	raw, err := a.store.GetSetting(dip.SettingSnapshotVersion)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing snapshot version %q: %w", raw, err)
	}
	return v, nil
}

// checkSnapshot refuses to work on a cache that is older than the snapshot
// in the vault, so unsubmitted work from another machine is not overwritten.
func (a *App) checkSnapshot(ctx context.Context) error {
	if a.vault == nil || a.session.User == "" {
		return nil
	}
	remote, err := a.vault.SnapshotVersion(ctx, a.session.User)
	if err != nil {
		return fmt.Errorf("checking snapshot version: %w", err)
	}
	local, err := a.localSnapshotVersion()
	if err != nil {
		return err
	}
	if remote > local {
		return fmt.Errorf("local cache is behind the snapshot in vault %s (local=%d, remote=%d): run dip cache restore", a.vault.Name(), local, remote)
	}
	return nil
}

// RestoreSnapshot replaces the SQLite cache with the newest snapshot in the
// vault and returns its version.
func (a *App) RestoreSnapshot(ctx context.Context) (int64, error) {
	if a.vault == nil {
		return 0, fmt.Errorf("no vaults configured")
	}
	if a.session.User == "" {
		return 0, fmt.Errorf("unknown user: run dip auth login first")
	}
	if a.cfg.Cache.Type != "sqlite" {
		return 0, fmt.Errorf("cache type %q cannot be restored", a.cfg.Cache.Type)
	}

	version, err := a.vault.SnapshotVersion(ctx, a.session.User)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("restoring %s: %w", a.session.User, vault.ErrSnapshotNotFound)
	}

	tmp, err := os.CreateTemp(a.cfg.Cache.DataDir, "dip-restore-*.db")
	if err != nil {
		return 0, fmt.Errorf("creating temp file for restore: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := a.vault.GetSnapshot(ctx, a.session.User, tmp); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("downloading snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("writing snapshot: %w", err)
	}

	if err := a.store.Close(); err != nil {
		return 0, fmt.Errorf("closing cache: %w", err)
	}
	dbPath := filepath.Join(a.cfg.Cache.DataDir, database.CacheFileName)
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return 0, fmt.Errorf("replacing cache: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(dbPath + suffix)
	}

	store, err := database.NewStoreFromConfig(a.cfg.Cache)
	if err != nil {
		return 0, fmt.Errorf("reopening cache: %w", err)
	}
	a.store = store
	if err := a.store.CheckMigrations(); err != nil {
		return 0, fmt.Errorf("restored cache schema out of date: %w", err)
	}
	if err := a.observePending(); err != nil {
		return 0, err
	}
	a.wire()
	a.logger.Info("cache restored", "vault", a.vault.Name(), "version", version)
	return version, nil
}

// Close finalizes the operation and closes all resources.
// When the operation changed the cache and a vault is configured, the cache
// is snapshotted and uploaded with version = unix seconds.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var tmpPath string
	if a.op.Mutated() && a.vault != nil && a.session.User != "" {
		var version int64
		tmpPath, version = a.snapshot(keep)
		if tmpPath != "" {
			defer os.Remove(tmpPath)
		}
		if err := a.store.Close(); err != nil {
			keep(fmt.Errorf("closing cache: %w", err))
		}
		if tmpPath != "" {
			keep(a.uploadSnapshot(tmpPath, version))
		}
	} else if err := a.store.Close(); err != nil {
		keep(fmt.Errorf("closing cache: %w", err))
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status)
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// snapshot records the next snapshot version in the cache and writes a copy
// of it to a temp file. It returns "" when no copy could be made.
func (a *App) snapshot(keep func(error)) (string, int64) {
	local, err := a.localSnapshotVersion()
	if err != nil {
		keep(err)
		return "", 0
	}
	version := a.clock.Now().Unix()
	if version <= local {
		version = local + 1
	}
	if err := a.store.PutSetting(dip.SettingSnapshotVersion, []byte(strconv.FormatInt(version, 10))); err != nil {
		keep(fmt.Errorf("recording snapshot version: %w", err))
		return "", 0
	}

	tmpFile, err := os.CreateTemp("", "dip-cache-snapshot-*.db")
	if err != nil {
		keep(fmt.Errorf("creating temp file for cache snapshot: %w", err))
		return "", 0
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := a.store.BackupTo(tmpPath); err != nil {
		keep(fmt.Errorf("snapshotting cache: %w", err))
		return "", 0
	}
	return tmpPath, version
}

// uploadSnapshot opens the snapshot file and uploads it to the vault.
func (a *App) uploadSnapshot(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening cache snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat cache snapshot: %w", err)
	}

	// The command is over; the upload is not tied to its context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := a.vault.PutSnapshot(ctx, a.session.User, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading cache snapshot to vault: %w", err)
	}
	a.logger.Info("cache snapshot uploaded", "vault", a.vault.Name(), "version", version, "size", info.Size())
	return nil
}

// track marks the operation mutated and failed when err is non-nil.
func (a *App) track(err error) error {
	a.op.MarkMutated()
	if err != nil {
		a.op.Fail()
	}
	return err
}

// fail marks the operation failed when err is non-nil.
func (a *App) fail(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

var errNotSignedIn = errors.New("not signed in: run dip auth login")
