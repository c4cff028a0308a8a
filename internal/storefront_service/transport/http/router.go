package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/guard"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
)

// RouterDeps is everything NewRouter wires together.
type RouterDeps struct {
	Registry         *app.Registry
	Backend          StorefrontBackend
	Queries          *querycache.Cache
	Pages            *pagecache.Cache
	Revalidator      Revalidator
	Revalidate       *RevalidateHandler
	Guard            guard.Config
	AdminRoles       []string
	CookieSecure     bool
	TokenRefreshSkew time.Duration
	RequestTimeout   time.Duration
	Logger           *slog.Logger
}

// NewRouter builds the storefront HTTP surface.
func NewRouter(d RouterDeps) chi.Router {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}
	if len(d.AdminRoles) == 0 {
		d.AdminRoles = []string{"admin", "superuser"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(d.RequestTimeout))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "Storefront service is healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Called by the backend and the CLI; authenticated by shared secret, not by client session.
	r.Method(http.MethodPost, "/api/revalidate", d.Revalidate)

	guardCfg := guard.HTTPConfig{Config: d.Guard}
	authHandler := NewAuthHandler(d.Logger)
	cartHandler := NewCartHandler(d.Logger)
	notificationHandler := NewNotificationHandler(d.Logger)
	catalogHandler := NewCatalogHandler(d.Backend, d.Queries, d.Pages, d.Logger)
	orderHandler := NewOrderHandler(d.Backend, d.Queries, d.Revalidator, d.Logger)
	adminHandler := NewAdminHandler(d.Revalidator, d.Registry, d.Queries, d.Pages, d.Logger)

	r.Group(func(cr chi.Router) {
		cr.Use(ClientMiddleware(d.Registry, d.CookieSecure, d.TokenRefreshSkew, d.Logger))

		cr.Route("/auth", authHandler.RegisterRoutes)
		cartHandler.RegisterRoutes(cr)
		cr.Route("/notifications", notificationHandler.RegisterRoutes)
		catalogHandler.RegisterRoutes(cr)

		cr.Route("/orders", func(or chi.Router) {
			or.Use(guard.Require(guard.AuthRequired(), guardCfg, SessionOf, d.Logger))
			orderHandler.RegisterRoutes(or)
		})
		cr.Route("/admin", func(ar chi.Router) {
			ar.Use(guard.Require(guard.RoleRequired(d.AdminRoles...), guardCfg, SessionOf, d.Logger))
			adminHandler.RegisterRoutes(ar)
		})
	})
	return r
}
