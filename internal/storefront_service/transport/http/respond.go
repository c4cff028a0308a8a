package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a JSON body into dst. An empty body is reported separately.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			jsonError(w, "Request body is empty", http.StatusBadRequest)
			return false
		}
		jsonError(w, "Invalid request payload", http.StatusBadRequest)
		return false
	}
	return true
}

func authCode(kind error) string {
	switch {
	case errors.Is(kind, domain.ErrInvalidOTP):
		return "invalid_otp"
	case errors.Is(kind, domain.ErrOTPExpired):
		return "otp_expired"
	case errors.Is(kind, domain.ErrRefreshRejected):
		return "refresh_rejected"
	case errors.Is(kind, domain.ErrOTPSendFailed):
		return "otp_send_failed"
	case errors.Is(kind, domain.ErrNotAuthenticated):
		return "not_authenticated"
	default:
		return "auth_error"
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr    *domain.ValidationError
		authErr *domain.AuthError
		apiErr  *backend.APIError
		netErr  *backend.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Code: "validation_error", Fields: verr.Fields})
	case errors.As(err, &authErr):
		status := http.StatusUnauthorized
		switch {
		case errors.Is(authErr.Kind, domain.ErrOTPExpired):
			status = http.StatusGone
		case errors.Is(authErr.Kind, domain.ErrOTPSendFailed):
			status = http.StatusBadGateway
			if errors.As(err, &apiErr) && apiErr.IsClientError() {
				status = apiErr.Status
			}
		}
		jsonResponse(w, status, ErrorResponse{Error: authErr.Message, Code: authCode(authErr.Kind)})
	case errors.Is(err, domain.ErrRequestInFlight):
		jsonResponse(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "in_flight"})
	case errors.Is(err, domain.ErrNotAuthenticated):
		jsonResponse(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "not_authenticated"})
	case errors.Is(err, domain.ErrLineNotFound):
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status >= 500 || status < 400 {
			status = http.StatusBadGateway
		}
		jsonResponse(w, status, ErrorResponse{Error: apiErr.Message, Code: apiErr.Code})
	case errors.As(err, &netErr):
		logger.WarnContext(r.Context(), "Backend unreachable", "error", err)
		jsonResponse(w, http.StatusBadGateway, ErrorResponse{Error: "backend unavailable", Code: "network_error"})
	default:
		logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}
