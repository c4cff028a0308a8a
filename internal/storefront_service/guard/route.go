package guard

import (
	"sync"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

const DefaultAuthRedirect = "/auth"

// Navigator performs redirects for a ProtectedRoute.
type Navigator interface {
	Redirect(to string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(to string)

func (f NavigatorFunc) Redirect(to string) { f(to) }

// Config is the per-route guard configuration. A callback, when set, is
// invoked instead of the redirect for its reason.
type Config struct {
	// RedirectTo overrides the fallback for every rejection.
	RedirectTo string
	// AuthRedirect is where unauthenticated sessions go. Defaults to /auth.
	AuthRedirect string
	// DefaultRoute is where role and permission guards send forbidden sessions.
	DefaultRoute   string
	OnUnauthorized func(domain.Session)
	OnForbidden    func(domain.Session)
}

// Target returns the redirect destination for reason.
func (c Config) Target(p Policy, reason Reason) string {
	if c.RedirectTo != "" {
		return c.RedirectTo
	}
	authRedirect := c.AuthRedirect
	if authRedirect == "" {
		authRedirect = DefaultAuthRedirect
	}
	if reason == ReasonForbidden && p.Kind != KindAuth {
		if c.DefaultRoute != "" {
			return c.DefaultRoute
		}
		return "/"
	}
	return authRedirect
}

type View int

const (
	// ViewPlaceholder is the neutral loading view.
	ViewPlaceholder View = iota
	ViewContent
	// ViewNothing: the route was rejected and a redirect or callback took over.
	ViewNothing
)

// ProtectedRoute feeds session snapshots through the guard state machine and
// redirects exactly once each time it enters Unauthorized.
type ProtectedRoute struct {
	policy Policy
	cfg    Config
	nav    Navigator

	mu         sync.Mutex
	state      State
	redirected bool
}

func NewProtectedRoute(p Policy, cfg Config, nav Navigator) *ProtectedRoute {
	return &ProtectedRoute{policy: p, cfg: cfg, nav: nav, state: Pending}
}

func (r *ProtectedRoute) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Observe evaluates s and returns what the route should show.
func (r *ProtectedRoute) Observe(s domain.Session) View {
	d := Evaluate(r.policy, s)

	r.mu.Lock()
	r.state = d.State
	if d.State != Unauthorized {
		r.redirected = false
		r.mu.Unlock()
		if d.State == Pending {
			return ViewPlaceholder
		}
		return ViewContent
	}
	if r.redirected {
		r.mu.Unlock()
		return ViewNothing
	}
	r.redirected = true
	r.mu.Unlock()

	decisionsCounter.WithLabelValues(r.policy.Kind.String(), d.State.String()).Inc()
	switch {
	case d.Reason == ReasonUnauthenticated && r.cfg.OnUnauthorized != nil:
		r.cfg.OnUnauthorized(s)
	case d.Reason == ReasonForbidden && r.cfg.OnForbidden != nil:
		r.cfg.OnForbidden(s)
	case r.nav != nil:
		r.nav.Redirect(r.cfg.Target(r.policy, d.Reason))
	}
	return ViewNothing
}

// SessionSource is what a ProtectedRoute can bind to.
type SessionSource interface {
	Snapshot() domain.Session
	Subscribe(fn func(domain.Session)) func()
}

// Bind observes the current snapshot and every later transition of src. The
// returned function stops observing.
func (r *ProtectedRoute) Bind(src SessionSource) func() {
	unsubscribe := src.Subscribe(func(s domain.Session) { r.Observe(s) })
	r.Observe(src.Snapshot())
	return unsubscribe
}
