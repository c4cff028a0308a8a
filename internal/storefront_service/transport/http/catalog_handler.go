package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
)

const (
	productsEndpoint   = "/api/v1/public/products"
	categoriesEndpoint = "/api/v1/public/categories"
	ordersEndpoint     = "/api/v1/orders"

	TagCategories = "categories"
	TagOrders     = "orders"
)

// CatalogHandler serves public catalog reads through the query cache and
// the page cache.
type CatalogHandler struct {
	backend StorefrontBackend
	queries *querycache.Cache
	pages   *pagecache.Cache
	logger  *slog.Logger
}

func NewCatalogHandler(b StorefrontBackend, queries *querycache.Cache, pages *pagecache.Cache, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{backend: b, queries: queries, pages: pages, logger: logger.With("handler", "catalog")}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	cached := r.With(h.pages.Middleware(PageTags))
	cached.Get("/products", h.handleListProducts)
	cached.Get("/products/{slug}", h.handleGetProduct)
	cached.Get("/categories", h.handleListCategories)
}

// PageTags names the revalidation tags a catalog page depends on.
func PageTags(r *http.Request) []string {
	p := strings.TrimRight(r.URL.Path, "/")
	switch {
	case p == "/products":
		return []string{revalidation.TagProducts}
	case strings.HasPrefix(p, "/products/"):
		return []string{revalidation.TagProducts, "product:" + strings.TrimPrefix(p, "/products/")}
	case p == "/categories":
		return []string{TagCategories}
	default:
		return nil
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := domain.ProductQuery{
		Page:     atoi(r.URL.Query().Get("page")),
		PageSize: atoi(r.URL.Query().Get("page_size")),
		Category: r.URL.Query().Get("category"),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}
	key := querycache.Key(productsEndpoint, "list", q.Page, q.PageSize, q.Category, q.Search)
	list, err := querycache.Fetch(r.Context(), h.queries, key, func(ctx context.Context) (*domain.ProductList, error) {
		list, err := h.backend.ListProducts(ctx, q)
		if err != nil {
			return nil, err
		}
		for i := range list.Items {
			p := list.Items[i]
			querycache.Set(h.queries, app.ProductKey(p.ID), &p)
			h.linkSlug(p.Slug, p.ID)
		}
		return list, nil
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	p, err := querycache.Fetch(r.Context(), h.queries, app.ProductKey(slug), func(ctx context.Context) (*domain.Product, error) {
		p, err := h.backend.GetProduct(ctx, slug)
		if err != nil {
			return nil, err
		}
		if p.ID != "" && p.ID != slug {
			querycache.Set(h.queries, app.ProductKey(p.ID), p)
			h.linkSlug(slug, p.ID)
		}
		return p, nil
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// linkSlug ties the slug-keyed product entry to the id-keyed one used by
// cart enrichment, so revalidating either reaches both.
func (h *CatalogHandler) linkSlug(slug, id string) {
	if slug == "" || id == "" || slug == id {
		return
	}
	h.queries.Link(app.ProductKey(slug), app.ProductKey(id))
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := querycache.Fetch(r.Context(), h.queries, categoriesEndpoint, h.backend.ListCategories)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"items": cats})
}
