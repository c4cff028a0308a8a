package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// SessionLookup returns the session of the client making r. ok is false when
// the request carries no client state.
type SessionLookup func(r *http.Request) (s domain.Session, ok bool)

// HTTPConfig configures the Require middleware. Handlers, when set, replace
// the default rejection response for their reason.
type HTTPConfig struct {
	Config
	UnauthorizedHandler http.Handler
	ForbiddenHandler    http.Handler
}

// Require guards next with p. Pending sessions get a 202 placeholder; rejected
// HTML requests are redirected with 303 and rejected JSON requests get
// 401 or 403 with the redirect target in the body.
func Require(p Policy, cfg HTTPConfig, lookup SessionLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookup(r)
			if !ok {
				logger.ErrorContext(r.Context(), "Client session missing from request. Client middleware must run first.")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			d := Evaluate(p, s)
			switch d.State {
			case Authorized:
				next.ServeHTTP(w, r)
				return
			case Pending:
				decisionsCounter.WithLabelValues(p.Kind.String(), d.State.String()).Inc()
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusAccepted, map[string]any{"status": d.State.String()})
				return
			}

			decisionsCounter.WithLabelValues(p.Kind.String(), d.State.String()).Inc()
			logger.WarnContext(r.Context(), "Guard rejected request",
				"path", r.URL.Path, "guard", p.Kind.String(), "reason", reasonText(d.Reason))

			if d.Reason == ReasonUnauthenticated && cfg.UnauthorizedHandler != nil {
				cfg.UnauthorizedHandler.ServeHTTP(w, r)
				return
			}
			if d.Reason == ReasonForbidden && cfg.ForbiddenHandler != nil {
				cfg.ForbiddenHandler.ServeHTTP(w, r)
				return
			}

			target := cfg.Target(p, d.Reason)
			if wantsJSON(r) {
				status := http.StatusUnauthorized
				if d.Reason == ReasonForbidden {
					status = http.StatusForbidden
				}
				writeJSON(w, status, map[string]any{"error": reasonText(d.Reason), "redirect": target})
				return
			}
			if d.Reason == ReasonUnauthenticated {
				target = withNext(target, r.URL.RequestURI())
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

func reasonText(r Reason) string {
	switch r {
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	default:
		return ""
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/html") {
		return false
	}
	return strings.Contains(accept, "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		accept == ""
}

func withNext(target, next string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
