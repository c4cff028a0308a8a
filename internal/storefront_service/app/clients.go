package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
)

var ErrInvalidClientID = errors.New("invalid client id")

// ClientState groups the containers of one browser client. The containers
// are independent: logging in or out never touches the cart or wishlist.
type ClientState struct {
	ID            string
	Session       *SessionContainer
	Cart          *CartContainer
	Wishlist      *WishlistContainer
	Notifications *NotificationCenter

	once     sync.Once
	loadErr  error
	lastSeen atomic.Int64
}

// RegistryConfig carries the dependencies shared by all clients.
type RegistryConfig struct {
	Store            localstore.Store
	Auth             AuthBackend
	Products         ProductSource
	Queries          *querycache.Cache
	EnrichmentMaxAge time.Duration
}

// Registry keeps the in-memory state of active clients. State lives in the
// store, so an evicted client is rebuilt on its next request.
type Registry struct {
	cfg    RegistryConfig
	mu     sync.Mutex
	states map[string]*ClientState
	now    func() time.Time
	logger *slog.Logger
}

func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		states: map[string]*ClientState{},
		now:    time.Now,
		logger: logger.With("component", "client_registry"),
	}
}

// Get returns the state for clientID, loading it from the store on first
// use. Load errors are logged; the client still gets usable (empty)
// containers. A session whose user could not be loaded retries on later
// calls.
func (r *Registry) Get(ctx context.Context, clientID string) (*ClientState, error) {
	if _, err := uuid.Parse(clientID); err != nil {
		return nil, ErrInvalidClientID
	}

	r.mu.Lock()
	st, ok := r.states[clientID]
	if !ok {
		st = r.newState(clientID)
		r.states[clientID] = st
		activeClientsGauge.Set(float64(len(r.states)))
	}
	r.mu.Unlock()

	st.lastSeen.Store(r.now().UnixNano())
	hydrated := false
	st.once.Do(func() {
		st.loadErr = r.hydrate(context.WithoutCancel(ctx), st)
		hydrated = true
	})
	if !hydrated {
		if err := st.Session.ResumeUser(ctx); err != nil {
			r.logger.WarnContext(ctx, "Resuming session user failed", "client_id", st.ID, "error", err)
		}
	}
	return st, nil
}

func (r *Registry) newState(clientID string) *ClientState {
	scoped := localstore.Scoped(r.cfg.Store, clientID)
	log := r.logger.With("client_id", clientID)
	return &ClientState{
		ID:            clientID,
		Session:       NewSessionContainer(scoped, r.cfg.Auth, r.cfg.Queries, log),
		Cart:          NewCartContainer(scoped, r.cfg.Products, r.cfg.Queries, r.cfg.EnrichmentMaxAge, log),
		Wishlist:      NewWishlistContainer(scoped, log),
		Notifications: NewNotificationCenter(),
	}
}

func (r *Registry) hydrate(ctx context.Context, st *ClientState) error {
	err := errors.Join(
		st.Cart.Load(ctx),
		st.Wishlist.Load(ctx),
		st.Session.Hydrate(ctx),
	)
	if err != nil {
		r.logger.WarnContext(ctx, "Client hydration incomplete", "client_id", st.ID, "error", err)
	}
	return err
}

// Len reports how many clients are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// Evict drops clients not seen for idle.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, st := range r.states {
		if st.lastSeen.Load() < cutoff {
			delete(r.states, id)
			n++
		}
	}
	activeClientsGauge.Set(float64(len(r.states)))
	return n
}

// RunJanitor evicts idle clients every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 {
				r.logger.InfoContext(ctx, "Evicted idle clients", "count", n)
			}
		}
	}
}
