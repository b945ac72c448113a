package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/xard1993/komun-api/internal/api"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/buildings"
	"github.com/xard1993/komun-api/internal/notify"
	"github.com/xard1993/komun-api/internal/storage"
	postgresstore "github.com/xard1993/komun-api/internal/store/postgres"
	"github.com/xard1993/komun-api/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"KOMUN_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"KOMUN_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"KOMUN_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"KOMUN_CORS_ORIGINS"`

	// Authentication
	JWTSecret string `help:"HS256 secret used to verify access tokens" env:"KOMUN_JWT_SECRET"`

	// Approval notices
	PublicBaseURL  string        `help:"base URL used in emailed approval links" default:"http://localhost:8080" env:"KOMUN_PUBLIC_BASE_URL"`
	NotifyMaxTries uint          `help:"delivery attempts per approval notice" default:"3" env:"KOMUN_NOTIFY_MAX_TRIES"`
	NotifyBackoff  time.Duration `help:"initial delay between notice delivery attempts" default:"200ms"`

	// Document storage
	StorageType    string `help:"document storage type (local or memory)" default:"local" env:"KOMUN_STORAGE_TYPE" enum:"local,memory"`
	StorageDir     string `help:"directory for locally stored documents" default:"./data/documents" env:"KOMUN_STORAGE_DIR"`
	MaxUploadBytes int64  `help:"maximum size of an uploaded document in bytes" default:"20971520" env:"KOMUN_MAX_UPLOAD_BYTES"`

	// Database
	AutoMigrate      bool          `help:"apply public and tenant migrations on startup" default:"false" env:"KOMUN_AUTO_MIGRATE"`
	StatementTimeout time.Duration `help:"statement timeout for tenant transactions (0 disables)" default:"30s" env:"KOMUN_STATEMENT_TIMEOUT"`
	Postgres         PostgresFlags `embed:"" prefix:"postgres-"`

	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"KOMUN_TRACING"`
	TraceSampleRatio float64 `help:"fraction of root traces recorded" default:"1" env:"KOMUN_TRACE_SAMPLE_RATIO"`
}

func (c *ServeCmd) Validate() error {
	if len(c.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes (--jwt-secret or KOMUN_JWT_SECRET)", auth.MinSecretLength)
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	rootLogger := setupLogging(globals)
	log := rootLogger

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "komun-api",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go postgresstore.MonitorPool(monitorCtx, pool, time.Minute)

	provisioner, tenantStore, migrator := newProvisioner(pool)

	if c.AutoMigrate {
		applied, err := migrator.MigratePublic(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate public schema: %w", err)
		}
		tenantApplied, err := provisioner.MigrateAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate tenant schemas: %w", err)
		}
		log.Info().Int("public", applied).Int("tenant", tenantApplied).Msg("Migrations applied")
	}

	executor, err := postgresstore.NewTenantExecutor(pool, &postgresstore.ExecutorConfig{
		StatementTimeout: c.StatementTimeout,
	})
	if err != nil {
		return err
	}

	blobs, err := c.openStorage(log)
	if err != nil {
		return err
	}

	dispatcher, err := notify.NewDispatcher(&notify.LogSender{BaseURL: c.PublicBaseURL}, notify.DispatcherConfig{
		MaxTries:        c.NotifyMaxTries,
		InitialInterval: c.NotifyBackoff,
	})
	if err != nil {
		return fmt.Errorf("failed to create notice dispatcher: %w", err)
	}

	verifier, err := auth.NewVerifier(c.JWTSecret, tenantStore)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	handler := api.NewRouter(api.Config{
		CORSOrigins:    c.CORSOrigins,
		MaxUploadBytes: c.MaxUploadBytes,
		Logger:         rootLogger,
	}, api.Services{
		Tenants:   provisioner,
		Buildings: buildings.NewService(executor),
		Budgets:   budget.NewService(executor, dispatcher, blobs),
	}, verifier.Middleware())

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (c *ServeCmd) openStorage(log zerolog.Logger) (storage.Storage, error) {
	if c.StorageType == "memory" {
		log.Warn().Msg("Using in-memory document storage, documents are lost on restart")
		return storage.NewMemory(), nil
	}

	blobs, err := storage.NewLocal(c.StorageDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", c.StorageDir).Msg("Using local document storage")
	return blobs, nil
}
