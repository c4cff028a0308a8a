package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

func guarded(p Policy, cfg HTTPConfig, s *domain.Session) http.Handler {
	lookup := func(*http.Request) (domain.Session, bool) {
		if s == nil {
			return domain.Session{}, false
		}
		return *s, true
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return Require(p, cfg, lookup, logger.Discard())(ok)
}

func TestRequire_States(t *testing.T) {
	pending := session(true, nil)
	anon := session(false, nil)
	customer := session(false, &domain.User{ID: "1", Role: domain.RoleCustomer})
	admin := session(false, &domain.User{ID: "2", Role: domain.RoleAdmin})

	tests := []struct {
		name       string
		policy     Policy
		session    *domain.Session
		accept     string
		wantStatus int
		wantLoc    string
	}{
		{"pending", AuthRequired(), &pending, "application/json", http.StatusAccepted, ""},
		{"anonymous json", AuthRequired(), &anon, "application/json", http.StatusUnauthorized, ""},
		{"anonymous html", AuthRequired(), &anon, "text/html", http.StatusSeeOther, "/auth?next=%2Forders%3Fpage%3D2"},
		{"authorized", AuthRequired(), &customer, "application/json", http.StatusTeapot, ""},
		{"forbidden json", RoleRequired(domain.RoleAdmin), &customer, "application/json", http.StatusForbidden, ""},
		{"forbidden html", RoleRequired(domain.RoleAdmin), &customer, "text/html", http.StatusSeeOther, "/"},
		{"role ok", RoleRequired(domain.RoleAdmin), &admin, "", http.StatusTeapot, ""},
		{"no client state", AuthRequired(), nil, "", http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders?page=2", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rr := httptest.NewRecorder()
			guarded(tt.policy, HTTPConfig{}, tt.session).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rr.Header().Get("Location"))
			}
		})
	}
}

func TestRequire_JSONBodyCarriesRedirect(t *testing.T) {
	anon := session(false, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Accept", "application/json")
	guarded(AuthRequired(), HTTPConfig{Config: Config{AuthRedirect: "/login"}}, &anon).ServeHTTP(rr, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unauthenticated", body["error"])
	assert.Equal(t, "/login", body["redirect"])
}

func TestRequire_CustomHandler(t *testing.T) {
	customer := session(false, &domain.User{ID: "1", Role: domain.RoleCustomer})
	cfg := HTTPConfig{ForbiddenHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})}
	rr := httptest.NewRecorder()
	guarded(RoleRequired(domain.RoleAdmin), cfg, &customer).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
