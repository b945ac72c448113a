package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// TenantStore implements store.TenantStore using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type TenantStore struct {
	mu sync.RWMutex

	tenants map[uuid.UUID]*models.Tenant      // tenant_id -> Tenant
	slugs   map[string]uuid.UUID              // slug -> tenant_id
	members map[uuid.UUID][]models.TenantUser // tenant_id -> members
	users   map[uuid.UUID]*models.User        // user_id -> User

	// schemas records the schemas created alongside tenants
	schemas map[string]bool
}

var _ store.TenantStore = (*TenantStore)(nil)

// NewTenantStore creates a new in-memory tenant catalog.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[uuid.UUID]*models.Tenant),
		slugs:   make(map[string]uuid.UUID),
		members: make(map[uuid.UUID][]models.TenantUser),
		users:   make(map[uuid.UUID]*models.User),
		schemas: make(map[string]bool),
	}
}

// CreateWithSchema stores the tenant and records its schema.
func (s *TenantStore) CreateWithSchema(ctx context.Context, tenant *models.Tenant, schema tenancy.Schema) error {
	if schema.IsZero() || schema.Slug() != tenant.Slug {
		return tenancy.ErrInvalidTenantIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slugs[tenant.Slug]; exists {
		return store.ErrTenantAlreadyExists
	}

	clone := *tenant
	s.tenants[tenant.ID] = &clone
	s.slugs[tenant.Slug] = tenant.ID
	s.schemas[schema.Name()] = true

	return nil
}

// HasSchema reports whether a schema was created. Used by tests.
func (s *TenantStore) HasSchema(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemas[name]
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *t
	return &clone, nil
}

// GetBySlug retrieves a tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	s.mu.RLock()
	id, exists := s.slugs[slug]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrTenantNotFound
	}
	return s.Get(ctx, id)
}

// List returns every tenant ordered by slug.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		clone := *t
		tenants = append(tenants, &clone)
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].Slug < tenants[j].Slug
	})

	return tenants, nil
}

// SetState records the provisioning state reached by a tenant.
func (s *TenantStore) SetState(ctx context.Context, tenantID uuid.UUID, state models.TenantState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tenants[tenantID]
	if !exists {
		return store.ErrTenantNotFound
	}

	t.State = state
	t.UpdatedAt = time.Now()
	return nil
}

// AddMember binds a user to a tenant.
func (s *TenantStore) AddMember(ctx context.Context, member *models.TenantUser) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[member.TenantID]; !exists {
		return false, store.ErrTenantNotFound
	}

	for _, m := range s.members[member.TenantID] {
		if m.UserID == member.UserID {
			return false, nil
		}
	}

	s.members[member.TenantID] = append(s.members[member.TenantID], *member)
	return true, nil
}

// ListMemberships returns every tenant a user belongs to.
func (s *TenantStore) ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memberships []models.Membership
	for tenantID, members := range s.members {
		for _, m := range members {
			if m.UserID == userID {
				memberships = append(memberships, models.Membership{
					TenantID:   tenantID,
					TenantSlug: s.tenants[tenantID].Slug,
					Role:       m.Role,
				})
			}
		}
	}

	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].TenantSlug < memberships[j].TenantSlug
	})

	return memberships, nil
}

// PutUser stores a platform user.
func (s *TenantStore) PutUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *user
	s.users[user.ID] = &clone
}

// CreateUser stores a platform user, rejecting duplicate emails.
func (s *TenantStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrUserAlreadyExists
		}
	}

	clone := *user
	s.users[user.ID] = &clone
	return nil
}

// GetUser looks up a platform user.
func (s *TenantStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *u
	return &clone, nil
}

// Users returns a directory of the stored users, used to resolve unit members.
func (s *TenantStore) Users() map[uuid.UUID]models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[uuid.UUID]models.User, len(s.users))
	for id, u := range s.users {
		users[id] = *u
	}
	return users
}
