package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// Sentinel errors for tenant catalog operations
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
)

// TenantStore defines the tenant catalog kept in the shared public schema.
type TenantStore interface {
	// CreateWithSchema inserts the tenant row and creates its empty schema in one transaction.
	// Returns ErrTenantAlreadyExists if the slug is taken, in which case no schema is created.
	CreateWithSchema(ctx context.Context, tenant *models.Tenant, schema tenancy.Schema) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetBySlug retrieves a tenant by slug.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)

	// List returns every tenant ordered by slug.
	List(ctx context.Context) ([]*models.Tenant, error)

	// SetState records the provisioning state reached by a tenant.
	SetState(ctx context.Context, tenantID uuid.UUID, state models.TenantState) error

	// AddMember binds a user to a tenant. Returns false without error if the
	// membership already exists.
	AddMember(ctx context.Context, member *models.TenantUser) (bool, error)

	// ListMemberships returns every tenant a user belongs to.
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.Membership, error)

	// CreateUser adds a platform user to the shared schema.
	// Returns ErrUserAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser looks up a platform user.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}
