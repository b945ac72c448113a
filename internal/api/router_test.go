package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/buildings"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/provisioning"
	"github.com/xard1993/komun-api/internal/storage"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/store/memory"
	"github.com/xard1993/komun-api/internal/tenancy"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type noopMigrator struct{}

func (noopMigrator) MigrateTenant(ctx context.Context, schema tenancy.Schema) (int, error) {
	return 0, nil
}

type testServer struct {
	srv     *httptest.Server
	catalog *memory.TenantStore
	tenants *memory.Tenants
	owner   *models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	catalog := memory.NewTenantStore()
	tenants := memory.NewTenants(catalog)

	provisioner := provisioning.NewService(catalog, noopMigrator{})

	owner := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "owner@example.com", Name: "Olive Owner"}
	catalog.PutUser(owner)

	_, err := provisioner.CreateTenant(ctx, provisioning.NewTenant{Name: "Acme Estates", Slug: "acme", OwnerUserID: owner.ID})
	require.NoError(t, err)
	require.NoError(t, tenants.AddTenant("acme"))

	verifier, err := auth.NewVerifier(testSecret, catalog)
	require.NoError(t, err)

	handler := NewRouter(Config{
		CORSOrigins: []string{"https://app.example.com"},
		Logger:      zerolog.Nop(),
	}, Services{
		Tenants:   provisioner,
		Buildings: buildings.NewService(tenants),
		Budgets:   budget.NewService(tenants, nil, storage.NewMemory()),
	}, verifier.Middleware())

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, catalog: catalog, tenants: tenants, owner: owner}
}

func (ts *testServer) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), user.ID, user.Email, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends body as JSON and decodes a JSON response into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) approvalTokens(t *testing.T, periodID uuid.UUID) []string {
	t.Helper()
	var tokens []string
	err := ts.tenants.InTenant(context.Background(), "acme", func(ctx context.Context, bs store.BuildingStore) error {
		approvals, err := bs.ListApprovals(ctx, periodID)
		if err != nil {
			return err
		}
		for _, a := range approvals {
			tokens = append(tokens, a.Token)
		}
		return nil
	})
	require.NoError(t, err)
	return tokens
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil, &body))
	require.Equal(t, "ok", body["status"])
}

func TestBudgetApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, ts.owner)
	base := "/api/v1/tenants/acme"

	var building buildingResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/buildings", token,
		map[string]string{"name": "North Tower", "address": "1 Main St"}, &building))

	for _, label := range []string{"A1", "A2", "A3"} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/buildings/"+building.ID.String()+"/units", token,
			map[string]string{"label": label}, nil))
	}

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/fee-templates", token,
		map[string]any{"building_id": building.ID, "name": "Maintenance", "amount": "10", "frequency": "monthly"}, nil))

	var period periodResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/buildings/"+building.ID.String()+"/budget-periods", token,
		map[string]any{"year": 2027}, &period))
	require.Equal(t, "draft", period.Status)
	require.Equal(t, "2027-01-01", period.StartDate)
	require.Equal(t, "2027-12-31", period.EndDate)

	// a building has at most one period per year
	var apiErr errorResponse
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, base+"/buildings/"+building.ID.String()+"/budget-periods", token,
		map[string]any{"year": 2027}, &apiErr))
	require.Equal(t, "already_exists", apiErr.Error.Code)

	periodPath := base + "/budget-periods/" + period.ID.String()

	var lines []lineResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, periodPath+"/lines", token, nil, &lines))
	require.Len(t, lines, 1)
	require.Equal(t, models.UnitContributionsDescription, lines[0].Description)
	require.Equal(t, "360", lines[0].Amount.String())

	var sent sendResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, periodPath+"/send", token, nil, &sent))
	require.Equal(t, budget.Applied, sent.Outcome)
	require.Equal(t, 3, sent.TokensIssued)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, periodPath+"/send", token, nil, &sent))
	require.Equal(t, budget.AlreadyDone, sent.Outcome)

	tokens := ts.approvalTokens(t, period.ID)
	require.Len(t, tokens, 3)

	approvalPath := "/public/tenants/acme/budget-periods/" + period.ID.String() + "/approval"

	var res approvalResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, approvalPath+"/approve?token="+tokens[0], "", nil, &res))
	require.Equal(t, budget.Applied, res.Outcome)
	require.Equal(t, "proposed", res.PeriodStatus)
	require.Equal(t, 2, res.RequiredApprovals)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, approvalPath+"/approve", "",
		map[string]string{"token": tokens[1]}, &res))
	require.True(t, res.QuorumReached)
	require.Equal(t, "approved", res.PeriodStatus)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, approvalPath+"/approve?token="+tokens[0], "", nil, &res))
	require.Equal(t, budget.AlreadyDone, res.Outcome)

	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, approvalPath+"/reject", "",
		map[string]string{"token": tokens[0], "reason": "changed my mind"}, &apiErr))
	require.Equal(t, "conflicting_response", apiErr.Error.Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, approvalPath+"/reject", "",
		map[string]string{"token": tokens[2], "reason": "too expensive"}, &res))
	require.Equal(t, budget.Applied, res.Outcome)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, approvalPath+"/approve?token=doesnotexist", "", nil, &apiErr))
	require.Equal(t, "token_not_found", apiErr.Error.Code)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, approvalPath+"/approve", "", nil, &apiErr))

	badTenantPath := "/public/tenants/Acme/budget-periods/" + period.ID.String() + "/approval"
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, badTenantPath+"/approve?token=doesnotexist", "", nil, &apiErr))
	require.Equal(t, "invalid_tenant", apiErr.Error.Code)

	var summary summaryResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, periodPath+"/approvals", token, nil, &summary))
	require.Equal(t, 2, summary.Approved)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, 0, summary.Pending)

	var closed periodResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, periodPath+"/close", token, nil, &closed))
	require.Equal(t, "closed", closed.Status)

	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, periodPath+"/close", token, nil, &apiErr))
	require.Equal(t, "invalid_state_transition", apiErr.Error.Code)
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	tenant, err := ts.catalog.GetBySlug(ctx, "acme")
	require.NoError(t, err)

	resident := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "resident@example.com"}
	ts.catalog.PutUser(resident)
	_, err = ts.catalog.AddMember(ctx, &models.TenantUser{TenantID: tenant.ID, UserID: resident.ID, Role: models.RoleResident})
	require.NoError(t, err)

	outsider := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "outsider@example.com"}
	ts.catalog.PutUser(outsider)

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/v1/me", want: http.StatusUnauthorized},
		{name: "garbage token", token: "not-a-jwt", method: http.MethodGet, path: "/api/v1/me", want: http.StatusUnauthorized},
		{name: "resident cannot create buildings", token: ts.token(t, resident), method: http.MethodPost, path: "/api/v1/tenants/acme/buildings", want: http.StatusForbidden},
		{name: "outsider cannot read periods", token: ts.token(t, outsider), method: http.MethodGet, path: "/api/v1/tenants/acme/budget-periods/" + uuid.NewString(), want: http.StatusForbidden},
		{name: "resident reads unknown period", token: ts.token(t, resident), method: http.MethodGet, path: "/api/v1/tenants/acme/budget-periods/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "malformed id", token: ts.token(t, ts.owner), method: http.MethodGet, path: "/api/v1/tenants/acme/budget-periods/nope", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ts.do(t, tt.method, tt.path, tt.token, nil, nil))
		})
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	var me struct {
		UserID      uuid.UUID            `json:"user_id"`
		Email       string               `json:"email"`
		Memberships []membershipResponse `json:"memberships"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/me", ts.token(t, ts.owner), nil, &me))
	require.Equal(t, ts.owner.ID, me.UserID)
	require.Len(t, me.Memberships, 1)
	require.Equal(t, "acme", me.Memberships[0].Tenant)
	require.Equal(t, string(models.RoleOrgOwner), me.Memberships[0].Role)
}

func TestCreateTenant(t *testing.T) {
	ts := newTestServer(t)

	admin := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "root@example.com", PlatformAdmin: true}
	ts.catalog.PutUser(admin)
	token := ts.token(t, admin)

	var tenant tenantResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/tenants", token,
		map[string]any{"name": "Beta Homes", "slug": "beta", "owner_user_id": ts.owner.ID}, &tenant))
	require.Equal(t, "beta", tenant.Slug)
	require.Equal(t, "EUR", tenant.Currency)
	require.Equal(t, string(models.TenantStateReady), tenant.State)

	var me struct {
		Memberships []membershipResponse `json:"memberships"`
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/me", ts.token(t, ts.owner), nil, &me))
	require.Len(t, me.Memberships, 2)

	var apiErr errorResponse
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/v1/tenants", token,
		map[string]string{"name": "Beta Again", "slug": "beta"}, &apiErr))

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/tenants", token,
		map[string]string{"name": "Bad", "slug": "Bad Slug!"}, &apiErr))
	require.Equal(t, "invalid_tenant", apiErr.Error.Code)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/tenants", token,
		map[string]string{"name": "Bad", "slug": "ok", "unknown": "x"}, &apiErr))
	require.Equal(t, "malformed_request", apiErr.Error.Code)
}

func TestCreateTenant_requiresPlatformAdmin(t *testing.T) {
	ts := newTestServer(t)

	outsider := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "stranger@example.com"}
	ts.catalog.PutUser(outsider)

	for name, user := range map[string]*models.User{"tenant owner": ts.owner, "no memberships": outsider} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/v1/tenants", ts.token(t, user),
				map[string]string{"name": "Stranger Co", "slug": "stranger-co"}, nil))
		})
	}

	require.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/v1/tenants", "",
		map[string]string{"name": "Stranger Co", "slug": "stranger-co"}, nil))

	_, err := ts.catalog.GetBySlug(context.Background(), "stranger-co")
	require.ErrorIs(t, err, store.ErrTenantNotFound)
}

func TestDocuments(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, ts.owner)
	base := "/api/v1/tenants/acme"

	var building buildingResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/buildings", token,
		map[string]string{"name": "North Tower"}, &building))

	var period periodResponse
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/buildings/"+building.ID.String()+"/budget-periods", token,
		map[string]any{"year": 2027}, &period))

	docsPath := base + "/budget-periods/" + period.ID.String() + "/documents"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "invoice.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("roof repair quote"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+docsPath, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc documentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "invoice.txt", doc.Filename)

	req, err = http.NewRequest(http.MethodGet, ts.srv.URL+docsPath+"/"+doc.ID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	download, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer download.Body.Close()
	require.Equal(t, http.StatusOK, download.StatusCode)
	require.True(t, strings.HasPrefix(download.Header.Get("Content-Disposition"), "attachment"))

	content, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	require.Equal(t, "roof repair quote", string(content))

	var docs []documentResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, docsPath, token, nil, &docs))
	require.Len(t, docs, 1)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, docsPath+"/"+doc.ID.String(), token, nil, nil))
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, docsPath+"/"+doc.ID.String(), token, nil, nil))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/v1/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight_unknownOrigin(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/v1/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.net")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
