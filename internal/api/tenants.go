package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/provisioning"
)

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, auth.ErrUnauthenticated)
		return
	}

	memberships := make([]membershipResponse, 0, len(principal.Memberships))
	for _, m := range principal.Memberships {
		memberships = append(memberships, membershipResponse{
			TenantID: m.TenantID,
			Tenant:   m.TenantSlug,
			Role:     string(m.Role),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        principal.UserID,
		"email":          principal.Email,
		"platform_admin": principal.PlatformAdmin,
		"memberships":    memberships,
	})
}

type createTenantRequest struct {
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	Owner    *uuid.UUID `json:"owner_user_id"`
	Logo     string     `json:"logo"`
	Address  string     `json:"address"`
	Currency string     `json:"currency"`
}

// createTenant provisions a tenant for a platform admin. The owner defaults to the caller.
func (h *handler) createTenant(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, r, auth.ErrUnauthenticated)
		return
	}

	var req createTenantRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	owner := principal.UserID
	if req.Owner != nil {
		owner = *req.Owner
	}

	tenant, err := h.tenants.CreateTenant(r.Context(), provisioning.NewTenant{
		Name:        req.Name,
		Slug:        req.Slug,
		OwnerUserID: owner,
		Logo:        req.Logo,
		Address:     req.Address,
		Currency:    req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tenantToResponse(tenant))
}
