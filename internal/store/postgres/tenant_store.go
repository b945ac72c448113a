package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// Pool is the subset of *pgxpool.Pool used by stores that run their own transactions.
type Pool interface {
	DBTX
	TxBeginner
}

// TenantStore implements store.TenantStore using the public schema.
type TenantStore struct {
	pool Pool
}

var _ store.TenantStore = (*TenantStore)(nil)

// NewTenantStore creates a new PostgreSQL-backed tenant catalog.
// It shares the connection pool with other stores.
func NewTenantStore(pool Pool) *TenantStore {
	return &TenantStore{
		pool: pool,
	}
}

const tenantColumns = `tenant_id, slug, name, logo, address, currency, state, created_at, updated_at`

// CreateWithSchema inserts the tenant row and creates the empty tenant schema in one
// transaction on the public schema.
func (s *TenantStore) CreateWithSchema(ctx context.Context, tenant *models.Tenant, schema tenancy.Schema) error {
	if schema.IsZero() || schema.Slug() != tenant.Slug {
		return fmt.Errorf("%w: schema does not match tenant slug", tenancy.ErrInvalidTenantIdentifier)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	query := `
		INSERT INTO public.tenants (
			tenant_id, slug, name, logo, address, currency, state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err = tx.Exec(ctx, query,
		tenant.ID,
		tenant.Slug,
		tenant.Name,
		tenant.Logo,
		tenant.Address,
		tenant.Currency,
		tenant.State,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", mapPostgresError(err))
	}

	if _, err = tx.Exec(ctx, "CREATE SCHEMA "+schema.Ident()); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema.Name(), mapPostgresError(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tenant creation: %w", err)
	}

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("slug", tenant.Slug).
		Str("schema", schema.Name()).
		Msg("Created tenant")

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM public.tenants WHERE tenant_id = $1`
	return scanTenant(s.pool.QueryRow(ctx, query, tenantID))
}

// GetBySlug retrieves a tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM public.tenants WHERE slug = $1`
	return scanTenant(s.pool.QueryRow(ctx, query, slug))
}

// List returns every tenant ordered by slug.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM public.tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// SetState records the provisioning state reached by a tenant.
func (s *TenantStore) SetState(ctx context.Context, tenantID uuid.UUID, state models.TenantState) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE public.tenants SET state = $2, updated_at = $3 WHERE tenant_id = $1`,
		tenantID, state, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("state", string(state)).
		Msg("Updated tenant state")

	return nil
}

// AddMember binds a user to a tenant. An existing membership is left untouched.
func (s *TenantStore) AddMember(ctx context.Context, member *models.TenantUser) (bool, error) {
	query := `
		INSERT INTO public.tenant_users (tenant_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query,
		member.TenantID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add tenant member: %w", mapPostgresError(err))
	}

	created := result.RowsAffected() > 0
	log.Debug().
		Str("tenant_id", member.TenantID.String()).
		Str("user_id", member.UserID.String()).
		Str("role", string(member.Role)).
		Bool("created", created).
		Msg("Added tenant member")

	return created, nil
}

// ListMemberships returns every tenant a user belongs to.
func (s *TenantStore) ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.Membership, error) {
	query := `
		SELECT tu.tenant_id, t.slug, tu.role
		FROM public.tenant_users tu
		JOIN public.tenants t ON t.tenant_id = tu.tenant_id
		WHERE tu.user_id = $1
		ORDER BY t.slug
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.TenantID, &m.TenantSlug, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return memberships, nil
}

// CreateUser inserts a platform user into the public schema.
func (s *TenantStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO public.users (user_id, email, name, platform_admin, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.PlatformAdmin, user.CreatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("user_id", user.ID.String()).Msg("Created user")
	return nil
}

// GetUser looks up a platform user.
func (s *TenantStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, email, name, platform_admin, created_at FROM public.users WHERE user_id = $1`, userID,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PlatformAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.ID,
		&t.Slug,
		&t.Name,
		&t.Logo,
		&t.Address,
		&t.Currency,
		&t.State,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}
