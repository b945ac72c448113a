package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xard1993/komun-api/internal/provisioning"
)

type TenantCmd struct {
	Create TenantCreateCmd `cmd:"" help:"Provision a new tenant"`
	Repair TenantRepairCmd `cmd:"" help:"Finish provisioning of an existing tenant"`
	Sync   TenantSyncCmd   `cmd:"" help:"Provision every tenant listed in a manifest"`
}

type TenantCreateCmd struct {
	Name     string `help:"tenant display name" required:""`
	Slug     string `help:"tenant slug, also names the schema" required:""`
	Owner    string `help:"user id of the tenant owner" required:""`
	Logo     string `help:"logo URL"`
	Address  string `help:"postal address"`
	Currency string `help:"ISO currency code" default:"EUR"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *TenantCreateCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	owner, err := uuid.Parse(c.Owner)
	if err != nil {
		return fmt.Errorf("invalid owner id %q: %w", c.Owner, err)
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	provisioner, _, _ := newProvisioner(pool)

	tenant, err := provisioner.CreateTenant(ctx, provisioning.NewTenant{
		Name:        c.Name,
		Slug:        c.Slug,
		OwnerUserID: owner,
		Logo:        c.Logo,
		Address:     c.Address,
		Currency:    c.Currency,
	})
	if err != nil {
		if tenant != nil {
			log.Warn().Str("tenant", tenant.Slug).Str("state", string(tenant.State)).
				Msg("Tenant partially provisioned, run tenant repair")
		}
		return err
	}

	fmt.Println(tenant.ID)
	return nil
}

type TenantRepairCmd struct {
	Slug  string `help:"tenant slug" required:""`
	Owner string `help:"user id of the tenant owner" required:""`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *TenantRepairCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	owner, err := uuid.Parse(c.Owner)
	if err != nil {
		return fmt.Errorf("invalid owner id %q: %w", c.Owner, err)
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	provisioner, _, _ := newProvisioner(pool)

	res, err := provisioner.Repair(ctx, c.Slug, owner)
	if err != nil {
		return err
	}

	if res.AlreadyDone {
		log.Info().Str("tenant", c.Slug).Msg("Tenant already ready, nothing to do")
	}
	return nil
}

type TenantSyncCmd struct {
	File string `help:"path to the tenants manifest" default:"tenants.yaml" type:"existingfile"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *TenantSyncCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	manifest, err := provisioning.LoadManifest(c.File)
	if err != nil {
		return err
	}

	pool, err := c.Postgres.open(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	provisioner, _, _ := newProvisioner(pool)

	res, err := provisioner.SyncManifest(ctx, manifest)
	if res != nil {
		log.Info().
			Strs("created", res.Created).
			Strs("repaired", res.Repaired).
			Strs("ready", res.Ready).
			Msg("Manifest synced")
	}
	return err
}
