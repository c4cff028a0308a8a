package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

type NotificationHandler struct {
	logger *slog.Logger
}

func NewNotificationHandler(logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{logger: logger.With("handler", "notifications")}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Delete("/", h.handleClear)
	r.Post("/read-all", h.handleMarkAllRead)
	r.Post("/{id}/read", h.handleMarkRead)
	r.Delete("/{id}", h.handleRemove)
}

func (h *NotificationHandler) list(st *app.ClientState) NotificationsResponse {
	items := st.Notifications.List()
	if items == nil {
		items = []domain.Notification{}
	}
	return NotificationsResponse{Items: items, Unread: st.Notifications.UnreadCount()}
}

func (h *NotificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, h.list(st))
}

func (h *NotificationHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if !st.Notifications.MarkRead(chi.URLParam(r, "id")) {
		jsonError(w, "Notification not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, h.list(st))
}

func (h *NotificationHandler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	st.Notifications.MarkAllRead()
	jsonResponse(w, http.StatusOK, h.list(st))
}

func (h *NotificationHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if !st.Notifications.Remove(chi.URLParam(r, "id")) {
		jsonError(w, "Notification not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, h.list(st))
}

func (h *NotificationHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	st.Notifications.Clear()
	jsonResponse(w, http.StatusOK, h.list(st))
}
