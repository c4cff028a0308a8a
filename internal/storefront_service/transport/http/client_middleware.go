package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// ClientCookie carries the opaque id that scopes a browser's stored state.
const ClientCookie = "sf_client"

type contextKey string

const clientStateKey = contextKey("clientState")

// ClientFromContext returns the client state installed by ClientMiddleware.
func ClientFromContext(ctx context.Context) (*app.ClientState, bool) {
	st, ok := ctx.Value(clientStateKey).(*app.ClientState)
	return st, ok
}

// SessionOf is a guard.SessionLookup over the client state in r.
func SessionOf(r *http.Request) (domain.Session, bool) {
	st, ok := ClientFromContext(r.Context())
	if !ok {
		return domain.Session{}, false
	}
	return st.Session.Snapshot(), true
}

// ClientMiddleware resolves the client id cookie (issuing one when absent or
// malformed), loads the client's state and refreshes tokens that are about
// to expire.
func ClientMiddleware(registry *app.Registry, secureCookie bool, refreshSkew time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var clientID string
			if c, err := r.Cookie(ClientCookie); err == nil {
				clientID = c.Value
			}
			if _, err := uuid.Parse(clientID); err != nil {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    clientID,
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}

			st, err := registry.Get(ctx, clientID)
			if err != nil {
				logger.ErrorContext(ctx, "Loading client state failed", "error", err)
				jsonError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if refreshSkew > 0 {
				if err := st.Session.EnsureFresh(ctx, refreshSkew); err != nil {
					if errors.Is(err, domain.ErrRefreshRejected) {
						logger.InfoContext(ctx, "Session ended by rejected refresh", "client_id", clientID)
					} else {
						logger.WarnContext(ctx, "Proactive token refresh failed", "client_id", clientID, "error", err)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, clientStateKey, st)))
		})
	}
}

func mustClient(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*app.ClientState, bool) {
	st, ok := ClientFromContext(r.Context())
	if !ok {
		logger.ErrorContext(r.Context(), "Client state not found in context. ClientMiddleware must run first.")
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
	return st, ok
}
