package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/compose"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/domain"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/keys"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store/drivers/sqlite"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/token"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds everything one CLI invocation works with. The history
// database is opened on first use so commands that never record anything
// never create the file.
type Application struct {
	cfg    Config
	logger *slog.Logger

	keys    *keys.Provider
	issuer  *token.Issuer
	compose *compose.Controller

	history store.Store
}

type Option func(*options)

type options struct {
	logOutput io.Writer
	runner    compose.Runner
	now       func() time.Time
}

// WithLogOutput sends logs somewhere other than stderr.
func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOutput = w } }

// WithRunner replaces the os/exec runner, mostly for tests.
func WithRunner(r compose.Runner) Option { return func(o *options) { o.runner = r } }

// WithClock pins the clock used for issuing tokens.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates an Application with all dependencies initialised.
func New(cfg Config, opts ...Option) (*Application, error) {
	o := options{logOutput: os.Stderr, runner: compose.ExecRunner{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "devtools",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  o.logOutput,
		}),
	}

	tc, err := cfg.TokenConfig()
	if err != nil {
		return nil, err
	}

	app.keys = keys.NewProvider(keys.DefaultPaths(cfg.KeyDir))

	app.issuer, err = token.NewIssuer(tc, app.keys)
	if err != nil {
		return nil, err
	}
	app.issuer.Now = o.now

	app.compose = compose.NewController(o.runner, cfg.ComposeOptions())

	return app, nil
}

func (app *Application) Config() Config               { return app.cfg }
func (app *Application) Logger() *slog.Logger         { return app.logger }
func (app *Application) Keys() *keys.Provider         { return app.keys }
func (app *Application) Issuer() *token.Issuer        { return app.issuer }
func (app *Application) Compose() *compose.Controller { return app.compose }

// Verifier builds a local verifier over the DER public key on disk.
func (app *Application) Verifier() (*token.Verifier, error) {
	pub, err := app.keys.LoadPublicKey()
	if err != nil {
		return nil, err
	}
	return token.NewVerifier(app.issuer.Config(), pub)
}

// Stack resolves a stack name against the configured docker dir.
func (app *Application) Stack(name string) (compose.Stack, error) {
	return compose.Lookup(app.cfg.DockerDir, name)
}

// LocalDevEnv returns the env vars for running the API against the dev
// stack, hashing DEVTOOLS_PROMETHEUS_PASSWORD when it is set.
func (app *Application) LocalDevEnv() ([]compose.EnvVar, error) {
	var hash string
	if app.cfg.PrometheusPassword != "" {
		var err error
		hash, err = cryptox.HashPrometheusPassword(app.cfg.PrometheusPassword)
		if err != nil {
			return nil, err
		}
	}
	return compose.LocalDevEnv(hash), nil
}

// History opens the issuance database, applying migrations on first use.
func (app *Application) History() (store.Store, error) {
	if app.history != nil {
		return app.history, nil
	}

	if err := os.MkdirAll(filepath.Dir(app.cfg.HistoryFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.HistoryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply history migrations: %w", err)
	}

	app.logger.Debug("history database ready", "file", app.cfg.HistoryFile)
	app.history = db
	return db, nil
}

// RecordIssued logs a valid token to the history. Failures are logged and
// otherwise ignored; the token has already been handed out.
func (app *Application) RecordIssued(ctx context.Context, issued token.Issued) {
	iat, exp := issued.Claims.IssuedAt.Time, issued.Claims.ExpiresAt.Time
	app.record(ctx, domain.Issuance{
		Kind:        domain.KindValid,
		Subject:     issued.Claims.Subject,
		Algorithm:   "ES256",
		IssuedAt:    &iat,
		ExpiresAt:   &exp,
		Fingerprint: cryptox.FingerprintToken(issued.Token),
	})
}

// RecordBroken logs a broken token to the history, best effort.
func (app *Application) RecordBroken(ctx context.Context, b token.Broken) {
	iss := domain.Issuance{
		Kind:        b.Variant.String(),
		Subject:     b.Subject,
		Algorithm:   b.Algorithm,
		Fingerprint: cryptox.FingerprintToken(b.Token),
	}
	if !b.IssuedAt.IsZero() {
		iat := b.IssuedAt
		iss.IssuedAt = &iat
	}
	if !b.ExpiresAt.IsZero() {
		exp := b.ExpiresAt
		iss.ExpiresAt = &exp
	}
	app.record(ctx, iss)
}

func (app *Application) record(ctx context.Context, iss domain.Issuance) {
	logger := slogx.FromContext(ctx)

	db, err := app.History()
	if err != nil {
		logger.Warn("issuance history unavailable", "error", err)
		return
	}

	now := time.Now().UTC()
	iss.ID = idx.NewAt(now)
	iss.CreatedAt = now
	if err := db.Issuances().Record(ctx, iss); err != nil {
		logger.Warn("failed to record issuance", "kind", iss.Kind, "error", err)
		return
	}
	logger.Debug("recorded issuance", "id", iss.ID.String(), "kind", iss.Kind)
}

// Close releases the history database if it was opened.
func (app *Application) Close() error {
	if app.history == nil {
		return nil
	}
	err := app.history.Close()
	app.history = nil
	if err != nil {
		app.logger.Error("error closing history database", "error", err)
	}
	return err
}
