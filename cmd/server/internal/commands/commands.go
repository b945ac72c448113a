package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/logger"
	"github.com/xard1993/komun-api/internal/provisioning"
	postgresstore "github.com/xard1993/komun-api/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// setupLogging installs the root logger as the global zerolog logger.
func setupLogging(globals *Globals) zerolog.Logger {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	return l
}

type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"KOMUN_DATABASE_URL"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20" env:"KOMUN_POSTGRES_MAX_CONNS"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
}

func (s *PostgresFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or KOMUN_DATABASE_URL)")
	}
	return nil
}

func (s *PostgresFlags) open(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
	}
	return postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	})
}

// newProvisioner wires the tenant catalog and migrator over pool.
func newProvisioner(pool *pgxpool.Pool) (*provisioning.Service, *postgresstore.TenantStore, *postgresstore.Migrator) {
	tenants := postgresstore.NewTenantStore(pool)
	migrator := postgresstore.NewMigrator(pool)
	return provisioning.NewService(tenants, migrator), tenants, migrator
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
