package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
)

// Authorization errors
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("permission denied")
)

// Permission represents an authorized action within a tenant
type Permission string

const (
	PermBuildingsRead   Permission = "buildings:read"
	PermBuildingsManage Permission = "buildings:manage"
	PermBudgetsRead     Permission = "budgets:read"
	PermBudgetsManage   Permission = "budgets:manage"
	PermLedgerRead      Permission = "ledger:read"
	PermLedgerWrite     Permission = "ledger:write"
	PermDocumentsRead   Permission = "documents:read"
	PermDocumentsManage Permission = "documents:manage"
)

// RolePermissions maps tenant roles to allowed permissions
var RolePermissions = map[models.Role][]Permission{
	models.RoleOrgOwner: {
		PermBuildingsRead, PermBuildingsManage,
		PermBudgetsRead, PermBudgetsManage,
		PermLedgerRead, PermLedgerWrite,
		PermDocumentsRead, PermDocumentsManage,
	},
	models.RoleOrgAdmin: {
		PermBuildingsRead, PermBuildingsManage,
		PermBudgetsRead, PermBudgetsManage,
		PermLedgerRead, PermLedgerWrite,
		PermDocumentsRead, PermDocumentsManage,
	},
	models.RolePropertyManager: {
		PermBuildingsRead, PermBuildingsManage,
		PermBudgetsRead, PermBudgetsManage,
		PermLedgerRead,
		PermDocumentsRead, PermDocumentsManage,
	},
	models.RoleAccountant: {
		PermBuildingsRead,
		PermBudgetsRead,
		PermLedgerRead, PermLedgerWrite,
		PermDocumentsRead,
	},
	models.RoleSupport: {
		PermBuildingsRead,
		PermBudgetsRead,
		PermDocumentsRead,
	},
	models.RoleResident: {
		PermBudgetsRead,
		PermDocumentsRead,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role models.Role, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(perms, perm)
}

// RequirePermission checks that the principal in ctx holds perm in the tenant slug
func RequirePermission(ctx context.Context, slug string, perm Permission) error {
	principal := PrincipalFromContext(ctx)
	if principal == nil {
		return ErrUnauthenticated
	}

	role, ok := principal.RoleIn(slug)
	if !ok {
		return fmt.Errorf("%w: not a member of %s", ErrForbidden, slug)
	}

	if !HasPermission(role, perm) {
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, role, perm)
	}

	return nil
}

// RequireTenantRole returns a middleware that only lets through principals holding perm in
// the tenant named by the request. slugFrom extracts the tenant slug from the request.
func RequireTenantRole(slugFrom func(*http.Request) string, perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := slugFrom(r)

			err := RequirePermission(r.Context(), slug, perm)
			switch {
			case errors.Is(err, ErrUnauthenticated):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				log.Debug().Err(err).Str("tenant", slug).Msg("Permission denied")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePlatformAdmin returns a middleware that only lets through platform admins.
func RequirePlatformAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			switch {
			case principal == nil:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			case !principal.PlatformAdmin:
				log.Debug().Str("user_id", principal.UserID.String()).Msg("Platform admin required")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
