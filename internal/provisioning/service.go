package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/telemetry"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// ErrProvisioningFailed is returned when a tenant was created but could not be brought to
// the ready state. The tenant keeps the last state it reached; Repair finishes the job.
var ErrProvisioningFailed = errors.New("tenant provisioning failed")

// ErrInvalidTenant is returned for incomplete tenant definitions.
var ErrInvalidTenant = errors.New("invalid tenant definition")

const defaultCurrency = "EUR"

// Migrator applies the pending tenant migrations to a schema and reports how many ran.
type Migrator interface {
	MigrateTenant(ctx context.Context, schema tenancy.Schema) (int, error)
}

// Service provisions tenants: catalog row, schema, migrations and owner membership.
type Service struct {
	tenants  store.TenantStore
	migrator Migrator
	now      func() time.Time
}

// NewService creates a provisioning service.
func NewService(tenants store.TenantStore, migrator Migrator) *Service {
	return &Service{
		tenants:  tenants,
		migrator: migrator,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewTenant describes a tenant to provision.
type NewTenant struct {
	Name        string
	Slug        string
	OwnerUserID uuid.UUID
	Logo        string
	Address     string
	Currency    string
}

// CreateTenant runs the provisioning saga. The tenant row and empty schema are created in
// one transaction, then the tenant migrations are applied and the owner membership is
// added, recording schema_created, migrated and ready as each step completes.
// A taken slug fails with store.ErrTenantAlreadyExists before anything is created; a
// failure after that wraps ErrProvisioningFailed.
func (s *Service) CreateTenant(ctx context.Context, in NewTenant) (*models.Tenant, error) {
	schema, err := tenancy.Resolve(in.Slug)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTenant)
	}
	if in.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidTenant)
	}
	if _, err := s.tenants.GetUser(ctx, in.OwnerUserID); err != nil {
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}

	now := s.now()
	tenant := &models.Tenant{
		ID:        uuid.Must(uuid.NewV7()),
		Slug:      in.Slug,
		Name:      in.Name,
		Logo:      in.Logo,
		Address:   in.Address,
		Currency:  in.Currency,
		State:     models.TenantStateSchemaCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tenants.CreateWithSchema(ctx, tenant, schema); err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant", tenant.Slug).
		Str("schema", schema.Name()).
		Msg("Tenant schema created")

	if err := s.advance(ctx, tenant, schema, in.OwnerUserID); err != nil {
		telemetry.GetMetrics().ProvisioningFailuresTotal.Add(ctx, 1)
		log.Error().
			Err(err).
			Str("tenant", tenant.Slug).
			Str("state", string(tenant.State)).
			Msg("Tenant provisioning stopped, run repair to finish")
		return tenant, fmt.Errorf("%w: %s stopped at %s: %w", ErrProvisioningFailed, tenant.Slug, tenant.State, err)
	}

	telemetry.GetMetrics().TenantsProvisionedTotal.Add(ctx, 1)
	log.Info().Str("tenant", tenant.Slug).Msg("Tenant provisioned")

	return tenant, nil
}

// advance moves a freshly created tenant through migrated to ready.
func (s *Service) advance(ctx context.Context, tenant *models.Tenant, schema tenancy.Schema, ownerID uuid.UUID) error {
	applied, err := s.migrator.MigrateTenant(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to migrate tenant schema: %w", err)
	}
	s.recordMigrations(ctx, applied)

	if err := s.setState(ctx, tenant, models.TenantStateMigrated); err != nil {
		return err
	}

	if _, err := s.addOwner(ctx, tenant, ownerID); err != nil {
		return err
	}

	return s.setState(ctx, tenant, models.TenantStateReady)
}

func (s *Service) setState(ctx context.Context, tenant *models.Tenant, state models.TenantState) error {
	if err := s.tenants.SetState(ctx, tenant.ID, state); err != nil {
		return fmt.Errorf("failed to record tenant state %s: %w", state, err)
	}
	tenant.State = state
	return nil
}

func (s *Service) addOwner(ctx context.Context, tenant *models.Tenant, ownerID uuid.UUID) (bool, error) {
	added, err := s.tenants.AddMember(ctx, &models.TenantUser{
		TenantID:  tenant.ID,
		UserID:    ownerID,
		Role:      models.RoleOrgOwner,
		CreatedAt: s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to add tenant owner: %w", err)
	}
	return added, nil
}

func (s *Service) recordMigrations(ctx context.Context, applied int) {
	if applied > 0 {
		telemetry.GetMetrics().TenantMigrationsTotal.Add(ctx, int64(applied))
	}
}

// RepairResult reports what Repair had to do.
type RepairResult struct {
	Tenant            *models.Tenant
	MigrationsApplied int
	OwnerAdded        bool
	// AlreadyDone is set when the tenant was ready and nothing was changed.
	AlreadyDone bool
}

// Repair brings an existing tenant to ready: it applies pending migrations, ensures the
// owner membership exists and records the ready state. Running it again is harmless.
func (s *Service) Repair(ctx context.Context, slug string, ownerUserID uuid.UUID) (*RepairResult, error) {
	schema, err := tenancy.Resolve(slug)
	if err != nil {
		return nil, err
	}
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidTenant)
	}

	tenant, err := s.tenants.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	wasReady := tenant.State == models.TenantStateReady

	applied, err := s.migrator.MigrateTenant(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to migrate %s: %w", ErrProvisioningFailed, slug, err)
	}
	s.recordMigrations(ctx, applied)

	if tenant.State == models.TenantStateSchemaCreated {
		if err := s.setState(ctx, tenant, models.TenantStateMigrated); err != nil {
			return nil, err
		}
	}

	added, err := s.addOwner(ctx, tenant, ownerUserID)
	if err != nil {
		return nil, err
	}

	if !wasReady {
		if err := s.setState(ctx, tenant, models.TenantStateReady); err != nil {
			return nil, err
		}
	}

	result := &RepairResult{
		Tenant:            tenant,
		MigrationsApplied: applied,
		OwnerAdded:        added,
		AlreadyDone:       wasReady && applied == 0 && !added,
	}

	log.Info().
		Str("tenant", slug).
		Int("migrations_applied", applied).
		Bool("owner_added", added).
		Bool("already_done", result.AlreadyDone).
		Msg("Tenant repaired")

	return result, nil
}

// MigrateAll applies pending tenant migrations to every tenant in the catalog. A failing
// tenant does not stop the others; all failures are returned together.
func (s *Service) MigrateAll(ctx context.Context) (int, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, tenant := range tenants {
		schema, err := tenancy.Resolve(tenant.Slug)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		applied, err := s.migrator.MigrateTenant(ctx, schema)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant.Slug).Msg("Failed to migrate tenant")
			errs = append(errs, fmt.Errorf("%s: %w", tenant.Slug, err))
			continue
		}
		s.recordMigrations(ctx, applied)
		total += applied

		if tenant.State == models.TenantStateSchemaCreated {
			if err := s.setState(ctx, tenant, models.TenantStateMigrated); err != nil {
				errs = append(errs, err)
			}
		}
	}

	log.Info().
		Int("tenants", len(tenants)).
		Int("migrations_applied", total).
		Int("failures", len(errs)).
		Msg("Tenant migrations finished")

	return total, errors.Join(errs...)
}
