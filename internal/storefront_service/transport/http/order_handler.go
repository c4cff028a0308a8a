package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// OrderHandler lists and places orders for the logged-in client. Routes are
// expected behind an auth guard.
type OrderHandler struct {
	backend     StorefrontBackend
	queries     *querycache.Cache
	revalidator Revalidator
	logger      *slog.Logger
}

func NewOrderHandler(b StorefrontBackend, queries *querycache.Cache, revalidator Revalidator, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{backend: b, queries: queries, revalidator: revalidator, logger: logger.With("handler", "orders")}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleListOrders)
	r.Post("/", h.handleCreateOrder)
}

func ordersKey(userID string) string {
	return querycache.Key(ordersEndpoint, userID)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	snap := st.Session.Snapshot()
	if !snap.IsAuthenticated {
		writeError(w, r, h.logger, domain.ErrNotAuthenticated)
		return
	}
	token := st.Session.Token()
	orders, err := querycache.Fetch(r.Context(), h.queries, ordersKey(snap.User.ID), func(ctx context.Context) ([]domain.Order, error) {
		return h.backend.ListOrders(ctx, token)
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"items": orders})
}

// handleCreateOrder submits the cart as an order. On success the cart is
// cleared, the order list is invalidated and the ordered products' pages are
// revalidated in the background.
func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	snap := st.Session.Snapshot()
	if !snap.IsAuthenticated {
		writeError(w, r, h.logger, domain.ErrNotAuthenticated)
		return
	}

	var req CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := app.ValidateStruct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items := st.Cart.Enrich(ctx)
	if len(items) == 0 {
		writeError(w, r, h.logger, domain.NewValidationError("items", "cart is empty"))
		return
	}
	in := domain.CreateOrderInput{Address: req.Address, Note: req.Note}
	for _, it := range items {
		in.Items = append(in.Items, domain.OrderLine{
			ProductID: it.ProductID,
			Color:     it.Color,
			Size:      it.Size,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice(),
		})
	}

	token := st.Session.Token()
	order, err := querycache.Mutate(ctx, h.queries, func(ctx context.Context) (*domain.Order, error) {
		return h.backend.CreateOrder(ctx, token, in)
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(ctx, "Order placed", "order_id", order.ID, "lines", len(in.Items))

	if err := st.Cart.Clear(ctx); err != nil {
		h.logger.ErrorContext(ctx, "Clearing cart after order failed", "order_id", order.ID, "error", err)
	}
	h.queries.Invalidate(ordersKey(snap.User.ID))

	reval := revalidation.Request{Tags: []string{TagOrders}}
	for _, it := range items {
		h.queries.Invalidate(app.ProductKey(it.ProductID))
		pr := revalidation.ProductRequest(it.Slug, revalidation.Request{})
		reval.Tags = append(reval.Tags, pr.Tags...)
		reval.Paths = append(reval.Paths, pr.Paths...)
	}
	h.revalidator.Go(ctx, reval)

	st.Notifications.Push(domain.NotificationSuccess, "سفارش ثبت شد", "سفارش شما با موفقیت ثبت شد", map[string]string{"order_id": order.ID})
	jsonResponse(w, http.StatusCreated, order)
}
