package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/tenancy"
)

//go:embed migrations/public/*.sql migrations/tenant/*.sql
var migrationsFS embed.FS

const (
	publicMigrationsDir = "migrations/public"
	tenantMigrationsDir = "migrations/tenant"
)

type migration struct {
	version int
	name    string
	content string
}

// migrationTarget describes where a batch of migrations is applied.
type migrationTarget struct {
	label      string
	searchPath string
	table      string
}

// Migrator applies the embedded SQL migrations to the public schema and to tenant schemas.
// Applied versions are tracked per schema in a schema_migrations table.
type Migrator struct {
	db TxBeginner
}

// NewMigrator creates a migrator that opens its transactions on db.
func NewMigrator(db TxBeginner) *Migrator {
	return &Migrator{db: db}
}

// MigratePublic applies pending migrations to the shared public schema.
// Returns the number of migrations applied.
func (m *Migrator) MigratePublic(ctx context.Context) (int, error) {
	target := migrationTarget{
		label:      "public",
		searchPath: "SET LOCAL search_path TO public",
		table:      "public.schema_migrations",
	}
	return m.migrate(ctx, publicMigrationsDir, target)
}

// MigrateTenant applies pending tenant migrations to schema. Migrations run in version
// order, each in its own transaction; the first failure stops the batch.
// Returns the number of migrations applied.
func (m *Migrator) MigrateTenant(ctx context.Context, schema tenancy.Schema) (int, error) {
	if schema.IsZero() {
		return 0, tenancy.ErrInvalidTenantIdentifier
	}
	target := migrationTarget{
		label:      schema.Name(),
		searchPath: schema.SearchPath(),
		table:      schema.Ident() + ".schema_migrations",
	}
	return m.migrate(ctx, tenantMigrationsDir, target)
}

func (m *Migrator) migrate(ctx context.Context, dir string, target migrationTarget) (int, error) {
	migrations, err := loadMigrations(migrationsFS, dir)
	if err != nil {
		return 0, err
	}

	log.Debug().Str("target", target.label).Int("count", len(migrations)).Msg("Found migration files")

	applied := 0
	for _, mig := range migrations {
		ok, err := m.executeMigration(ctx, target, mig)
		if err != nil {
			return applied, fmt.Errorf("migration %s on %s failed: %w", mig.name, target.label, err)
		}
		if ok {
			applied++
		}
	}

	log.Info().Str("target", target.label).Int("applied", applied).Msg("Migrations completed")
	return applied, nil
}

// executeMigration runs a single migration if it hasn't been applied yet.
// Reports whether the migration was applied by this call.
func (m *Migrator) executeMigration(ctx context.Context, target migrationTarget, mig migration) (bool, error) {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if _, err = tx.Exec(ctx, target.searchPath); err != nil {
		return false, fmt.Errorf("failed to set search path: %w", err)
	}

	// fails with invalid_schema_name when the tenant schema is missing, which keeps
	// tenant tables from silently landing in public
	_, err = tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+target.table+` (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return false, fmt.Errorf("failed to create migrations table: %w", mapPostgresError(err))
	}

	var applied bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+target.table+` WHERE version = $1)`, mig.version).Scan(&applied)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}

	if applied {
		log.Debug().Str("target", target.label).Int("version", mig.version).Str("name", mig.name).Msg("Migration already applied, skipping")
		return false, nil
	}

	log.Info().Str("target", target.label).Int("version", mig.version).Str("name", mig.name).Msg("Applying migration")

	if _, err = tx.Exec(ctx, mig.content); err != nil {
		return false, fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err = tx.Exec(ctx, `INSERT INTO `+target.table+` (version, name) VALUES ($1, $2)`, mig.version, mig.name); err != nil {
		return false, fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration: %w", err)
	}

	return true, nil
}

// loadMigrations reads the .sql files of dir sorted by their numeric version prefix
// (e.g. "1_initial_schema.sql" -> 1).
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			log.Warn().Str("file", entry.Name()).Msg("Skipping migration file with invalid name format")
			continue
		}

		version, err := strconv.Atoi(prefix)
		if err != nil {
			log.Warn().Str("file", entry.Name()).Err(err).Msg("Skipping migration file with invalid version number")
			continue
		}

		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, other, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			version: version,
			name:    entry.Name(),
			content: string(content),
		})
	}

	if len(migrations) == 0 {
		return nil, errors.New("no migrations found in " + dir)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}
