package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banoo-shop/storefront/internal/storefront_service/app"
)

// AuthHandler exposes the session container's transitions.
type AuthHandler struct {
	logger *slog.Logger
}

func NewAuthHandler(logger *slog.Logger) *AuthHandler {
	return &AuthHandler{logger: logger.With("handler", "auth")}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleSession)
	r.Post("/login", h.handleLogin)
	r.Post("/verify-otp", h.handleVerifyOTP)
	r.Post("/register", h.handleRegister)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, SessionResponse{st.Session.Snapshot()})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := st.Session.Login(r.Context(), req.Phone); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, SessionResponse{st.Session.Snapshot()})
}

func (h *AuthHandler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	var req VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := st.Session.VerifyOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, SessionResponse{snap})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := st.Session.CompleteRegistration(r.Context(), app.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, SessionResponse{snap})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	snap, err := st.Session.Refresh(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, SessionResponse{snap})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, ok := mustClient(w, r, h.logger)
	if !ok {
		return
	}
	if err := st.Session.Logout(r.Context()); err != nil {
		// Memory is already cleared; the client is logged out either way.
		h.logger.WarnContext(r.Context(), "Logout could not clear stored tokens", "error", err)
	}
	jsonResponse(w, http.StatusOK, SessionResponse{st.Session.Snapshot()})
}
