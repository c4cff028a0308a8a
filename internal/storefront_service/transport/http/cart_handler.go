package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// CartHandler serves the cart and wishlist containers.
type CartHandler struct {
	logger *slog.Logger
}

func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger.With("handler", "cart")}
}

func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.handleGetCart)
		r.Delete("/", h.handleClearCart)
		r.Post("/items", h.handleAddItem)
		r.Patch("/items/{key}", h.handleUpdateItem)
		r.Delete("/items/{key}", h.handleRemoveItem)
	})
	r.Route("/wishlist", func(r chi.Router) {
		r.Get("/", h.handleGetWishlist)
		r.Post("/toggle", h.handleToggleWishlist)
		r.Put("/{productID}", h.handleAddWishlist)
		r.Delete("/{productID}", h.handleRemoveWishlist)
	})
}

func (h *CartHandler) cartResponse(items []domain.CartItem) CartResponse {
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{Items: items, Totals: domain.ComputeTotals(items)}
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, h.cartResponse(st.Cart.Enrich(r.Context())))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	var req app.AddItemInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := st.Cart.AddItem(r.Context(), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusCreated, h.cartResponse(st.Cart.Items()))
}

func lineKeyParam(r *http.Request) (domain.LineKey, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return domain.LineKey{}, domain.NewValidationError("key", "is not a valid cart line key")
	}
	key, err := domain.ParseLineKey(raw)
	if err != nil {
		return domain.LineKey{}, domain.NewValidationError("key", "is not a valid cart line key")
	}
	return key, nil
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	key, err := lineKeyParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := app.ValidateStruct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := st.Cart.UpdateQuantity(r.Context(), key, *req.Quantity); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.cartResponse(st.Cart.Items()))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	key, err := lineKeyParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := st.Cart.RemoveItem(r.Context(), key); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.cartResponse(st.Cart.Items()))
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if err := st.Cart.Clear(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.cartResponse(nil))
}

func (h *CartHandler) wishlistResponse(st *app.ClientState) WishlistResponse {
	ids := st.Wishlist.ProductIDs()
	if ids == nil {
		ids = []string{}
	}
	return WishlistResponse{ProductIDs: ids}
}

func (h *CartHandler) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, h.wishlistResponse(st))
}

func (h *CartHandler) handleToggleWishlist(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	var req WishlistToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := app.ValidateStruct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	added, err := st.Wishlist.Toggle(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"product_id":  req.ProductID,
		"in_wishlist": added,
		"product_ids": h.wishlistResponse(st).ProductIDs,
	})
}

func (h *CartHandler) handleAddWishlist(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if err := st.Wishlist.Add(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.wishlistResponse(st))
}

func (h *CartHandler) handleRemoveWishlist(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if err := st.Wishlist.Remove(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, h.wishlistResponse(st))
}
