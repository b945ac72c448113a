package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type staticCatalog struct {
	users       map[uuid.UUID]*models.User
	memberships map[uuid.UUID][]models.Membership
	err         error
}

func (s *staticCatalog) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (s *staticCatalog) ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.memberships[userID], nil
}

func signClaims(t *testing.T, secret string, method jwt.SigningMethod, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenStr, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenStr
}

func TestNewVerifier(t *testing.T) {
	t.Run("empty secret", func(t *testing.T) {
		v, err := NewVerifier("", &staticCatalog{})
		require.Error(t, err)
		require.Nil(t, v)
		require.Equal(t, "JWT secret not provided", err.Error())
	})

	t.Run("short secret", func(t *testing.T) {
		_, err := NewVerifier("short", &staticCatalog{})
		require.Error(t, err)
	})

	t.Run("valid secret", func(t *testing.T) {
		v, err := NewVerifier(testSecret, &staticCatalog{})
		require.NoError(t, err)
		require.NotNil(t, v)
	})
}

func TestVerifierMiddleware(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	catalog := &staticCatalog{
		users: map[uuid.UUID]*models.User{
			userID: {ID: userID, Email: "ana@example.com"},
		},
		memberships: map[uuid.UUID][]models.Membership{
			userID: {{TenantID: tenantID, TenantSlug: "acme", Role: models.RoleAccountant}},
		},
	}

	v, err := NewVerifier(testSecret, catalog)
	require.NoError(t, err)

	var got *Principal
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid, err := IssueToken([]byte(testSecret), userID, "ana@example.com", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	expired := signClaims(t, testSecret, jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	})
	wrongIssuer := signClaims(t, testSecret, jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	noExpiry := signClaims(t, testSecret, jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String(), Issuer: Issuer},
	})
	wrongSecret := signClaims(t, "ffffffffffffffffffffffffffffffff", jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	unknownUser, err := IssueToken([]byte(testSecret), uuid.New(), "ghost@example.com", time.Hour)
	require.NoError(t, err)
	badSubject := signClaims(t, testSecret, jwt.SigningMethodHS512, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer, wantStatus: http.StatusUnauthorized},
		{name: "no expiry", header: "Bearer " + noExpiry, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + wrongSecret, wantStatus: http.StatusUnauthorized},
		{name: "other algorithm", header: "Bearer " + badSubject, wantStatus: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", header: "Bearer " + unknownUser, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme/buildings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				require.Equal(t, userID, got.UserID)
				require.Equal(t, "ana@example.com", got.Email)
				role, ok := got.RoleIn("acme")
				require.True(t, ok)
				require.Equal(t, models.RoleAccountant, role)
			} else {
				require.Nil(t, got)
			}
		})
	}
}

func TestVerifierMiddleware_MembershipLookupFails(t *testing.T) {
	v, err := NewVerifier(testSecret, &staticCatalog{err: errors.New("db down")})
	require.NoError(t, err)

	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	token, err := IssueToken([]byte(testSecret), uuid.New(), "a@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerifierMiddleware_PlatformAdmin(t *testing.T) {
	adminID := uuid.New()
	v, err := NewVerifier(testSecret, &staticCatalog{users: map[uuid.UUID]*models.User{
		adminID: {ID: adminID, Email: "root@example.com", PlatformAdmin: true},
	}})
	require.NoError(t, err)

	var got *Principal
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	token, err := IssueToken([]byte(testSecret), adminID, "root@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.True(t, got.PlatformAdmin)
	require.Empty(t, got.Memberships)
}

func TestVerifierMiddleware_UserLookupFails(t *testing.T) {
	v, err := NewVerifier(testSecret, &failingUsers{})
	require.NoError(t, err)

	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	token, err := IssueToken([]byte(testSecret), uuid.New(), "a@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingUsers struct{ staticCatalog }

func (f *failingUsers) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return nil, errors.New("db down")
}
