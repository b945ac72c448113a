package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

// Principal represents an authenticated user and the tenants they belong to.
// This is added to the request context after successful JWT verification.
type Principal struct {
	UserID        uuid.UUID
	Email         string
	PlatformAdmin bool
	Memberships   []models.Membership
}

// RoleIn returns the role the principal holds in the tenant with slug.
func (p *Principal) RoleIn(slug string) (models.Role, bool) {
	for _, m := range p.Memberships {
		if m.TenantSlug == slug {
			return m.Role, true
		}
	}
	return "", false
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalLoader resolves the catalog user and tenant memberships behind a token subject.
type PrincipalLoader interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.Membership, error)
}

// Verifier authenticates requests carrying a bearer access token.
type Verifier struct {
	jwt     *jwtVerifier
	catalog PrincipalLoader
}

// NewVerifier creates a verifier for HS256 tokens signed with secret.
func NewVerifier(secret string, catalog PrincipalLoader) (*Verifier, error) {
	v, err := newJWTVerifier(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{jwt: v, catalog: catalog}, nil
}

// Middleware returns an HTTP middleware that verifies the token and loads the user and
// memberships of its subject from the tenant catalog. Tokens for users missing from the
// catalog are rejected.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Debug().Msg("Missing Authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()

			userID, claims, err := v.jwt.verify(tokenString)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to verify JWT")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			memberships, err := v.catalog.ListMemberships(ctx, userID)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to load memberships")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			user, err := v.catalog.GetUser(ctx, userID)
			switch {
			case errors.Is(err, store.ErrUserNotFound):
				log.Warn().Str("user_id", userID.String()).Msg("Token subject is not a known user")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			case err != nil:
				log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to load user")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			principal := &Principal{
				UserID:        userID,
				Email:         claims.Email,
				PlatformAdmin: user.PlatformAdmin,
				Memberships:   memberships,
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
