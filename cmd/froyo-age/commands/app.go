package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/openfroyo/froyo-age/pkg/bridge"
	"github.com/openfroyo/froyo-age/pkg/config"
	"github.com/openfroyo/froyo-age/pkg/decrypt"
	"github.com/openfroyo/froyo-age/pkg/stores"
	"github.com/openfroyo/froyo-age/pkg/telemetry"
)

// settingsCandidates are looked up in the working directory when --config
// is not given.
var settingsCandidates = []string{
	"froyo-age.cue",
	"froyo-age.yaml",
	"froyo-age.yml",
	"froyo-age.json",
}

// shutdownTimeout bounds flushing telemetry on exit.
const shutdownTimeout = 5 * time.Second

// app holds the components shared by the commands that decrypt.
type app struct {
	settings  *config.Settings
	tel       *telemetry.Telemetry
	library   *decrypt.Library
	evaluator *config.StarlarkEvaluator
	bridge    *bridge.Bridge
	audit     *stores.SQLiteStore
}

// loadSettings reads the settings file named by --config, or the first
// candidate present in the working directory, or returns the defaults.
func loadSettings(ctx context.Context) (*config.Settings, string, error) {
	loader := config.NewSettingsLoader()

	if configPath != "" {
		settings, err := loader.Load(ctx, configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading settings: %w", err)
		}
		return settings, configPath, nil
	}

	for _, candidate := range settingsCandidates {
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		settings, err := loader.Load(ctx, candidate)
		if err != nil {
			return nil, "", fmt.Errorf("loading settings: %w", err)
		}
		return settings, candidate, nil
	}

	return config.DefaultSettings(), "", nil
}

// telemetryConfig applies --verbose and LOG_LEVEL on top of the settings.
func telemetryConfig(settings *config.Settings, version string) *telemetry.Config {
	cfg := settings.Telemetry(version)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg
}

// newApp wires settings, telemetry, the decryption library, the evaluator
// and the bridge. The returned context carries the telemetry.
func newApp(ctx context.Context, version string) (*app, context.Context, error) {
	settings, source, err := loadSettings(ctx)
	if err != nil {
		return nil, ctx, err
	}

	tel, err := telemetry.NewTelemetry(telemetryConfig(settings, version))
	if err != nil {
		return nil, ctx, fmt.Errorf("initializing telemetry: %w", err)
	}
	ctx = tel.WithContext(ctx)

	if source != "" {
		tel.Logger.WithField("settings", source).Debug("Loaded settings")
	}

	if err := tel.StartMetricsServer(); err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, ctx, fmt.Errorf("starting metrics server: %w", err)
	}

	mode, err := bridge.ParseCacheDirMode(settings.CacheDirMode)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, ctx, err
	}

	a := &app{
		settings: settings,
		tel:      tel,
		library: decrypt.NewLibrary(decrypt.Options{
			Logger:        tel.Logger.NewComponentLogger("decrypt").Zerolog(),
			OnCacheLookup: tel.Metrics.RecordCacheLookup,
		}),
		evaluator: config.NewStarlarkEvaluator(settings.TimeoutDuration()),
	}
	a.bridge = bridge.New(bridge.FromLibrary(a.library), a.evaluator, bridge.Options{CacheDirMode: mode})
	a.evaluator.Register(a.bridge.Builtins())

	if settings.Audit.Enabled {
		store, err := openAuditStore(ctx, settings.Audit.Path)
		if err != nil {
			_ = tel.Shutdown(context.Background())
			return nil, ctx, err
		}
		a.audit = store
		stores.Subscribe(tel.Events, store, tel.Logger.NewComponentLogger("audit").Zerolog())
	}

	return a, ctx, nil
}

// close flushes telemetry and closes the audit store.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{a.tel.Shutdown(ctx)}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	return errors.Join(errs...)
}

// request builds a bridge request from command flags, falling back to the
// settings for identities and cache options.
func (a *app) request(path string, identities []string, noCache bool, cacheDir string) bridge.Request {
	if len(identities) == 0 {
		identities = a.settings.Identities
	}
	cache := a.settings.Cache && !noCache
	if cacheDir == "" {
		cacheDir = a.settings.CacheDir
	}
	return bridge.Request{
		Identities: identities,
		Path:       path,
		Cache:      &cache,
		CacheDir:   cacheDir,
	}
}

func openAuditStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrating audit log: %w", err)
	}
	return store, nil
}
