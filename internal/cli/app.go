package cli

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/treeauth/internal/store"
	"github.com/aussiebroadwan/treeauth/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
	"github.com/aussiebroadwan/treeauth/pkg/httpx"
	"github.com/aussiebroadwan/treeauth/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

const (
	sessionNamespace = "session"
	rateLimitPrefix  = "TREEAUTH"
)

// Application holds everything a command needs: the SDK client and the
// store its session lives in.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	client *authsdk.SDKClient
}

// New opens the session store and builds the SDK client over it.
func New(cfg Config, opts ...authsdk.Option) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "treeauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	if err := app.initClient(opts); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) initStore() error {
	db, err := sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile), app.keySource(), app.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply session store migrations: %w", err)
	}
	return nil
}

// keySource prefers the configured master key, then the key file. With
// neither, the session cannot outlive the process.
func (app *Application) keySource() cryptox.KeySource {
	var sources []cryptox.KeySource
	if key := app.cfg.MasterKey; key != "" {
		sources = append(sources, cryptox.StaticKey(key))
	}
	if app.cfg.MasterKeyFile != "" {
		sources = append(sources, cryptox.FileKey(app.cfg.MasterKeyFile))
	}

	if len(sources) == 0 {
		app.logger.Warn("no master key configured, session will not survive this process",
			"env", envPrefix+"MASTER_KEY")
		return cryptox.EphemeralKey()
	}
	return cryptox.FirstKey(sources...)
}

func (app *Application) initClient(opts []authsdk.Option) error {
	sdkCfg := authsdk.Config{
		URL:                     app.cfg.URL,
		Realm:                   app.cfg.Realm,
		CookieName:              app.cfg.CookieName,
		Timeout:                 app.cfg.Timeout,
		ClientID:                app.cfg.ClientID,
		RedirectURI:             app.cfg.RedirectURI,
		Scope:                   app.cfg.Scope,
		CacheTTL:                app.cfg.CacheTTL,
		AuthServiceName:         app.cfg.Tree,
		RegistrationServiceName: app.cfg.RegistrationTree,
	}

	base := []authsdk.Option{
		authsdk.WithLogger(app.logger),
		authsdk.WithRepository(store.NewRepository(app.db.Secrets(), sessionNamespace)),
		authsdk.WithRateLimit(httpx.ParseRateLimitFromEnv(rateLimitPrefix, httpx.DefaultRateLimit)),
	}

	client, err := authsdk.NewSDKClient(sdkCfg, append(base, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to create sdk client: %w", err)
	}
	app.client = client
	return nil
}

// Client returns the SDK client.
func (app *Application) Client() *authsdk.SDKClient { return app.client }

// Close releases the SDK client and the store.
func (app *Application) Close() error {
	if app.client != nil {
		app.client.Close()
	}
	return app.db.Close()
}
