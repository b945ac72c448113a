package commands

import (
	"context"
	"fmt"
)

type MigrateCmd struct {
	PublicOnly bool          `help:"only migrate the shared public schema"`
	Postgres   PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	provisioner, _, migrator := newProvisioner(pool)

	applied, err := migrator.MigratePublic(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate public schema: %w", err)
	}
	log.Info().Int("applied", applied).Msg("Public schema migrated")

	if c.PublicOnly {
		return nil
	}

	// a failing tenant is reported but the others are still migrated
	tenantApplied, err := provisioner.MigrateAll(ctx)
	log.Info().Int("applied", tenantApplied).Msg("Tenant schemas migrated")
	if err != nil {
		return fmt.Errorf("failed to migrate tenant schemas: %w", err)
	}
	return nil
}
