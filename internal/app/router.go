package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/stockroom/stockroom/internal/audit/http"
	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/sales/customers"
	"github.com/stockroom/stockroom/internal/sales/orders"
	"github.com/stockroom/stockroom/internal/users"
	"github.com/stockroom/stockroom/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Tokens  *auth.Tokens

	AuthHandler      *auth.Handler
	ProductsHandler  *products.Handler
	CustomersHandler *customers.Handler
	InventoryHandler *inventory.Handler
	OrdersHandler    *orders.Handler
	ReportsHandler   *reports.Handler
	AuditHandler     *audithttp.Handler
	MembersHandler   *users.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with stockroom defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	authenticate := auth.Authenticate(params.Tokens, params.Logger)

	if params.JobHandler != nil {
		r.With(authenticate).Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			if params.ProductsHandler != nil {
				r.Route("/products", params.ProductsHandler.MountRoutes)
			}
			if params.CustomersHandler != nil {
				r.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				r.Route("/inventory", params.InventoryHandler.MountRoutes)
			}
			if params.ReportsHandler != nil {
				r.Route("/reports", params.ReportsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.MembersHandler != nil {
				r.Route("/members", params.MembersHandler.MountRoutes)
			}
		})
		// Order endpoints answer in the result envelope, authentication failures included.
		if params.OrdersHandler != nil {
			r.With(auth.AuthenticateWith(params.Tokens, params.Logger, orders.RejectUnauthenticated)).
				Route("/orders", params.OrdersHandler.MountRoutes)
		}
	})

	return r
}
