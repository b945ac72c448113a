// Package api exposes the tenant, building and budget services over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/buildings"
	httpmiddleware "github.com/xard1993/komun-api/internal/http"
	"github.com/xard1993/komun-api/internal/logger"
	"github.com/xard1993/komun-api/internal/provisioning"
)

// DefaultMaxUploadBytes caps the size of an uploaded budget document.
const DefaultMaxUploadBytes = 20 << 20

// Config configures the HTTP surface.
type Config struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// Services are the domain services the handlers call.
type Services struct {
	Tenants   *provisioning.Service
	Buildings *buildings.Service
	Budgets   *budget.Service
}

type handler struct {
	cfg       Config
	tenants   *provisioning.Service
	buildings *buildings.Service
	budgets   *budget.Service
}

// NewRouter builds the HTTP handler. authenticate must place an auth.Principal in the
// request context; routes under /public are reachable without it.
func NewRouter(cfg Config, svc Services, authenticate func(http.Handler) http.Handler) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	h := &handler{
		cfg:       cfg,
		tenants:   svc.Tenants,
		buildings: svc.Buildings,
		budgets:   svc.Budgets,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware())
	r.Use(logger.Requests(cfg.Logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(middleware.Recoverer)
	r.Use(withCORS(cfg.CORSOrigins))

	r.Get("/healthz", h.health)

	// approval links carry the token as the only credential
	r.Route("/public/tenants/{tenant}/budget-periods/{periodID}/approval", func(r chi.Router) {
		r.Post("/approve", h.approveByToken)
		r.Post("/reject", h.rejectByToken)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/me", h.me)
		r.With(auth.RequirePlatformAdmin()).Post("/tenants", h.createTenant)

		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.With(withPerm(auth.PermBuildingsManage)).Post("/buildings", h.createBuilding)
			r.With(withPerm(auth.PermBuildingsManage)).Post("/fee-templates", h.createFeeTemplate)
			r.With(withPerm(auth.PermBuildingsManage)).Post("/units/{unitID}/residents", h.addResident)

			r.Route("/buildings/{buildingID}", func(r chi.Router) {
				r.With(withPerm(auth.PermBuildingsRead)).Get("/", h.getBuilding)
				r.With(withPerm(auth.PermBuildingsRead)).Get("/units", h.listUnits)
				r.With(withPerm(auth.PermBuildingsManage)).Post("/units", h.createUnit)

				r.With(withPerm(auth.PermLedgerRead)).Get("/balance", h.balance)
				r.With(withPerm(auth.PermLedgerRead)).Get("/transactions", h.listTransactions)
				r.With(withPerm(auth.PermLedgerWrite)).Post("/transactions", h.recordTransaction)

				r.With(withPerm(auth.PermBudgetsRead)).Get("/budget-periods", h.listPeriods)
				r.With(withPerm(auth.PermBudgetsManage)).Post("/budget-periods", h.createPeriod)
			})

			r.Route("/budget-periods/{periodID}", func(r chi.Router) {
				r.With(withPerm(auth.PermBudgetsRead)).Get("/", h.getPeriod)
				r.With(withPerm(auth.PermBudgetsManage)).Post("/send", h.sendForApproval)
				r.With(withPerm(auth.PermBudgetsManage)).Post("/close", h.closePeriod)
				r.With(withPerm(auth.PermBudgetsRead)).Get("/approvals", h.approvalSummary)

				r.With(withPerm(auth.PermBudgetsRead)).Get("/lines", h.listLines)
				r.With(withPerm(auth.PermBudgetsManage)).Post("/lines", h.addLine)

				r.With(withPerm(auth.PermBudgetsRead)).Get("/contributions", h.listContributions)
				r.With(withPerm(auth.PermBudgetsManage)).Put("/contributions/{unitID}", h.setContribution)

				r.With(withPerm(auth.PermDocumentsRead)).Get("/documents", h.listDocuments)
				r.With(withPerm(auth.PermDocumentsManage)).Post("/documents", h.attachDocument)
				r.With(withPerm(auth.PermDocumentsRead)).Get("/documents/{documentID}", h.downloadDocument)
				r.With(withPerm(auth.PermDocumentsManage)).Delete("/documents/{documentID}", h.deleteDocument)
			})
		})
	})

	return r
}

func tenantSlug(r *http.Request) string {
	return chi.URLParam(r, "tenant")
}

func withPerm(perm auth.Permission) func(http.Handler) http.Handler {
	return auth.RequireTenantRole(tenantSlug, perm)
}

func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})
	return c.Handler
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
