package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
)

// AdminHandler holds operator endpoints; routes are expected behind a role guard.
type AdminHandler struct {
	revalidator Revalidator
	registry    *app.Registry
	queries     *querycache.Cache
	pages       *pagecache.Cache
	logger      *slog.Logger
}

func NewAdminHandler(revalidator Revalidator, registry *app.Registry, queries *querycache.Cache, pages *pagecache.Cache, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		revalidator: revalidator,
		registry:    registry,
		queries:     queries,
		pages:       pages,
		logger:      logger.With("handler", "admin"),
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/revalidate", h.handleRevalidate)
	r.Post("/products/{slug}/revalidate", h.handleRevalidateProduct)
	r.Get("/cache", h.handleCacheStats)
}

func (h *AdminHandler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	var req revalidation.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	req = req.Normalized()
	h.revalidator.Revalidate(r.Context(), req)
	jsonResponse(w, http.StatusAccepted, req)
}

func (h *AdminHandler) handleRevalidateProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.revalidator.RevalidateProduct(r.Context(), slug, revalidation.Request{})
	jsonResponse(w, http.StatusAccepted, revalidation.ProductRequest(slug, revalidation.Request{}))
}

func (h *AdminHandler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]int{
		"query_entries": h.queries.Len(),
		"page_entries":  h.pages.Len(),
		"clients":       h.registry.Len(),
	})
}
