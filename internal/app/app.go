package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"media-broker/internal/broker"
	"media-broker/internal/config"
	"media-broker/internal/database"
	"media-broker/internal/httpapi"
	"media-broker/internal/objectstore"
	"media-broker/internal/sts"
)

// Options tunes how an App is assembled.
type Options struct {
	// Migrate applies pending schema migrations on open. Without it the
	// schema must already be current.
	Migrate bool

	// LogWriter receives log output. Defaults to os.Stderr.
	LogWriter io.Writer

	// Clock defaults to the wall clock.
	Clock broker.Clock
}

// App is the application layer between the CLI and broker.Service. It
// constructs all dependencies from config and owns the registry lifecycle.
// The caller must call Close when done.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *database.SQLiteRegistry
	store    *objectstore.Client
	service  *broker.Service
}

// New creates a fully wired App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	clock := opts.Clock
	if clock == nil {
		clock = broker.RealClock{}
	}

	logger, err := NewLogger(w, cfg.Log.Level, "media-broker")
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := objectstore.New(objectstore.Config{
		Endpoint:     cfg.Storage.Endpoint,
		Bucket:       cfg.Storage.Bucket,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		SessionToken: cfg.Storage.SessionToken,
		HeadTimeout:  cfg.HeadTimeout(),
	}, objectstore.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	issuer, err := sts.NewIssuer(sts.Config{
		Endpoint:      cfg.STSEndpoint(),
		Region:        cfg.Storage.Region,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		RoleARN:       cfg.STS.RoleARN,
		Policy:        cfg.STS.Policy,
		Duration:      cfg.STSDuration(),
		SessionPrefix: cfg.STS.SessionPrefix,
		Timeout:       cfg.STSTimeout(),
	}, sts.WithClock(clock), sts.WithIDGenerator(broker.UUIDGenerator{}))
	if err != nil {
		return nil, fmt.Errorf("creating sts issuer: %w", err)
	}

	registry, err := database.NewRegistryFromConfig(cfg.Database, clock)
	if err != nil {
		return nil, fmt.Errorf("creating registry: %w", err)
	}

	if opts.Migrate {
		if err := registry.Migrate(); err != nil {
			registry.Close()
			return nil, fmt.Errorf("migrating registry: %w", err)
		}
	} else if err := registry.CheckMigrations(); err != nil {
		registry.Close()
		return nil, fmt.Errorf("database schema out of date (run migrate): %w", err)
	}

	storage := broker.StorageInfo{
		Provider: cfg.Storage.Provider,
		Endpoint: cfg.Storage.Endpoint,
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
	}
	svc := broker.NewService(registry, store, &issuerAdapter{issuer: issuer}, storage, &slogAdapter{l: logger}, clock)

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		service:  svc,
	}, nil
}

// Service returns the upload workflow.
func (a *App) Service() *broker.Service {
	return a.service
}

// Logger returns the process logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Serve runs the HTTP front door until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	server := httpapi.New(httpapi.Options{
		Listen:          a.cfg.Server.Listen,
		AuthToken:       a.cfg.Server.AuthToken,
		ShutdownTimeout: a.cfg.ShutdownTimeout(),
		Metrics:         a.cfg.Server.Metrics,
	}, a.service, &slogAdapter{l: a.logger})

	a.logger.Info("serving",
		"listen", a.cfg.Server.Listen,
		"endpoint", a.cfg.Storage.Endpoint,
		"bucket", a.cfg.Storage.Bucket,
		"database", a.registry.Path(),
	)
	return server.Run(ctx)
}

// Inspect reports the lifecycle state of a fingerprint.
func (a *App) Inspect(ctx context.Context, workspaceID, fingerprint string) (*broker.StatusReport, error) {
	return a.service.Status(ctx, workspaceID, fingerprint)
}

// Records lists the most recently updated rows of a workspace.
func (a *App) Records(ctx context.Context, workspaceID string, limit int) ([]*broker.MediaRecord, error) {
	return a.registry.ListRecords(ctx, workspaceID, limit)
}

// Close releases the registry.
func (a *App) Close() error {
	if err := a.registry.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
