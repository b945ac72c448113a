package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantState tracks how far provisioning got for a tenant.
type TenantState string

const (
	// TenantStateSchemaCreated means the catalog row and empty schema exist.
	TenantStateSchemaCreated TenantState = "schema_created"
	// TenantStateMigrated means the tenant schema migrations have been applied.
	TenantStateMigrated TenantState = "migrated"
	// TenantStateReady means the owner membership exists and the tenant is usable.
	TenantStateReady TenantState = "ready"
)

// Tenant represents a customer organisation backed by its own schema.
// The slug is the schema derivation key and never changes after creation.
type Tenant struct {
	ID        uuid.UUID // UUIDv7
	Slug      string
	Name      string
	Logo      string
	Address   string
	Currency  string
	State     TenantState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is a tenant-scoped role held by a user.
type Role string

const (
	RoleOrgOwner        Role = "org_owner"
	RoleOrgAdmin        Role = "org_admin"
	RolePropertyManager Role = "property_manager"
	RoleAccountant      Role = "accountant"
	RoleSupport         Role = "support"
	RoleResident        Role = "resident"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOrgOwner, RoleOrgAdmin, RolePropertyManager, RoleAccountant, RoleSupport, RoleResident:
		return true
	}
	return false
}

// TenantUser binds a user to a tenant with a role. Unique on (TenantID, UserID).
type TenantUser struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID // weak reference into public.users
	Role      Role
	CreatedAt time.Time
}

// Membership is a TenantUser joined with the tenant slug.
type Membership struct {
	TenantID   uuid.UUID
	TenantSlug string
	Role       Role
}

// User lives in the shared public schema.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string

	// PlatformAdmin users may provision tenants over the API.
	PlatformAdmin bool

	CreatedAt time.Time
}
