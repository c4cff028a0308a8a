package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

const (
	msgSendFailed      = "ارسال کد تایید ناموفق بود"
	msgInvalidOTP      = "کد تایید نادرست است"
	msgOTPExpired      = "کد تایید منقضی شده است، دوباره درخواست دهید"
	msgRefreshRejected = "نشست شما منقضی شده است، دوباره وارد شوید"
)

// userRetryInterval spaces ResumeUser attempts for one client.
const userRetryInterval = 5 * time.Second

// Observer is called with a snapshot after every session transition, before
// the transition's method returns.
type Observer = func(domain.Session)

// SessionContainer owns the auth state of one client. All changes go through
// its methods; readers get copies from Snapshot.
type SessionContainer struct {
	mu        sync.Mutex
	state     domain.Session
	verifying bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	refreshGroup singleflight.Group
	lastResume   time.Time

	store   localstore.Store
	auth    AuthBackend
	queries *querycache.Cache
	now     func() time.Time
	logger  *slog.Logger
}

func NewSessionContainer(store localstore.Store, auth AuthBackend, queries *querycache.Cache, logger *slog.Logger) *SessionContainer {
	return &SessionContainer{
		state:     domain.Session{IsLoading: true},
		observers: map[int]Observer{},
		store:     store,
		auth:      auth,
		queries:   queries,
		now:       time.Now,
		logger:    logger.With("component", "session"),
	}
}

// Snapshot returns a copy of the current state.
func (s *SessionContainer) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Token returns the current access token, or "" when logged out.
func (s *SessionContainer) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

// Subscribe registers fn and returns a function that removes it.
func (s *SessionContainer) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// transition applies fn to the state under the lock, restores the
// authentication invariant and notifies observers after unlocking.
func (s *SessionContainer) transition(fn func(st *domain.Session)) domain.Session {
	s.mu.Lock()
	fn(&s.state)
	s.state.Recompute()
	snap := s.state.Clone()
	s.mu.Unlock()

	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()
	for _, o := range obs {
		o(snap)
	}
	return snap
}

// Hydrate restores tokens from the local store and, when a token exists,
// loads the user it belongs to. The session leaves the loading state whatever
// the outcome.
func (s *SessionContainer) Hydrate(ctx context.Context) error {
	token, err := localstore.GetString(ctx, s.store, localstore.KeyAuthToken)
	if err != nil {
		s.transition(func(st *domain.Session) { st.IsLoading = false })
		return fmt.Errorf("reading stored token: %w", err)
	}
	refresh, err := localstore.GetString(ctx, s.store, localstore.KeyAuthRefreshToken)
	if err != nil {
		s.transition(func(st *domain.Session) { st.IsLoading = false })
		return fmt.Errorf("reading stored refresh token: %w", err)
	}
	if token == "" {
		s.transition(func(st *domain.Session) {
			*st = domain.Session{RefreshToken: refresh}
		})
		sessionTransitionsCounter.WithLabelValues("hydrate", "anonymous").Inc()
		return nil
	}

	s.transition(func(st *domain.Session) {
		st.Token = token
		st.RefreshToken = refresh
		st.TokenExpiresAt = tokenExpiry(token)
		st.IsLoading = true
	})

	return s.resolveUser(ctx, token, refresh, "hydrate")
}

// ResumeUser retries loading the user when a token is held but its user
// could not be resolved earlier, as happens when the backend was unreachable
// during Hydrate. Attempts are at least userRetryInterval apart; calls in
// between return at once.
func (s *SessionContainer) ResumeUser(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	now := s.now()
	if st.Token == "" || st.User != nil || st.IsLoading || st.NeedsRegistration ||
		now.Sub(s.lastResume) < userRetryInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastResume = now
	s.mu.Unlock()

	s.transition(func(st *domain.Session) { st.IsLoading = true })
	return s.resolveUser(ctx, st.Token, st.RefreshToken, "resume")
}

// resolveUser loads the user behind token and installs it. A 401 triggers
// one refresh; when the refreshed pair carries no user it is loaded with the
// new token. The session leaves the loading state on return.
func (s *SessionContainer) resolveUser(ctx context.Context, token, refresh, op string) error {
	user, err := s.loadUser(ctx, token)
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && refresh != "" {
		s.logger.InfoContext(ctx, "Stored token rejected, refreshing", "token", logger.Fingerprint(token))
		snap, rerr := s.Refresh(ctx)
		if rerr != nil || snap.User != nil {
			s.transition(func(st *domain.Session) { st.IsLoading = false })
			sessionTransitionsCounter.WithLabelValues(op, result(rerr)).Inc()
			return rerr
		}
		token = snap.Token
		user, err = s.loadUser(ctx, token)
	}
	if err != nil {
		s.transition(func(st *domain.Session) { st.IsLoading = false })
		sessionTransitionsCounter.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("loading user for stored token: %w", err)
	}

	s.transition(func(st *domain.Session) {
		// A logout or login that landed meanwhile owns the state now.
		if st.Token == token {
			st.User = user
		}
		st.IsLoading = false
	})
	sessionTransitionsCounter.WithLabelValues(op, "ok").Inc()
	return nil
}

func (s *SessionContainer) loadUser(ctx context.Context, token string) (*domain.User, error) {
	key := querycache.Key("/api/v1/auth/me", logger.Fingerprint(token))
	raw, err := querycache.Fetch(ctx, s.queries, key, func(ctx context.Context) (map[string]any, error) {
		return s.auth.Me(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return domain.NormalizeUser(raw)
}

// Login asks the backend to send an OTP. The session stays unauthenticated
// and remembers the phone for the verify step.
func (s *SessionContainer) Login(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if err := ValidateStruct(LoginInput{Phone: phone}); err != nil {
		return err
	}

	s.transition(func(st *domain.Session) { st.IsLoading = true })
	_, err := querycache.Mutate(ctx, s.queries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.auth.SendOTP(ctx, phone)
	})
	if err != nil {
		s.transition(func(st *domain.Session) { st.IsLoading = false })
		sessionTransitionsCounter.WithLabelValues("login", "error").Inc()
		s.logger.WarnContext(ctx, "Sending OTP failed", "error", err)
		return domain.NewAuthError(domain.ErrOTPSendFailed, displayMessage(err, msgSendFailed), err)
	}

	s.transition(func(st *domain.Session) {
		st.IsLoading = false
		st.PendingPhone = phone
	})
	sessionTransitionsCounter.WithLabelValues("login", "ok").Inc()
	return nil
}

// VerifyOTP exchanges phone and code for tokens. Only one verification may be
// in flight; a second call while the first is pending gets ErrRequestInFlight.
func (s *SessionContainer) VerifyOTP(ctx context.Context, phone, code string) (domain.Session, error) {
	phone, code = strings.TrimSpace(phone), strings.TrimSpace(code)
	if err := ValidateStruct(VerifyOTPInput{Phone: phone, Code: code}); err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	if s.verifying {
		s.mu.Unlock()
		return s.Snapshot(), domain.ErrRequestInFlight
	}
	s.verifying = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.verifying = false
		s.mu.Unlock()
	}()

	s.transition(func(st *domain.Session) { st.IsLoading = true })
	res, err := querycache.Mutate(ctx, s.queries, func(ctx context.Context) (*backend.VerifyResult, error) {
		return s.auth.VerifyOTP(ctx, phone, code)
	})
	if err != nil {
		snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
		sessionTransitionsCounter.WithLabelValues("verify_otp", "error").Inc()
		return snap, classifyVerifyError(err)
	}
	if res.Token == "" {
		snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
		return snap, domain.NewAuthError(domain.ErrInvalidOTP, msgInvalidOTP, errors.New("backend returned no token"))
	}

	var user *domain.User
	if len(res.User) > 0 {
		user, err = domain.NormalizeUser(res.User)
		if err != nil && !errors.Is(err, domain.ErrUserMissingID) {
			snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
			return snap, fmt.Errorf("normalizing verified user: %w", err)
		}
	}

	if err := s.persistTokens(ctx, res.Token, res.RefreshToken); err != nil {
		snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
		return snap, err
	}

	snap := s.transition(func(st *domain.Session) {
		st.User = user
		st.Token = res.Token
		st.RefreshToken = res.RefreshToken
		st.TokenExpiresAt = tokenExpiry(res.Token)
		st.PendingPhone = ""
		st.NeedsRegistration = user == nil || res.IsNewUser
		st.IsLoading = false
	})
	sessionTransitionsCounter.WithLabelValues("verify_otp", "ok").Inc()
	s.logger.InfoContext(ctx, "OTP verified", "token", logger.Fingerprint(res.Token), "needs_registration", snap.NeedsRegistration)
	return snap, nil
}

// CompleteRegistration sends the profile of a user that verified an OTP
// without an existing account.
func (s *SessionContainer) CompleteRegistration(ctx context.Context, in RegisterInput) (domain.Session, error) {
	if err := ValidateStruct(in); err != nil {
		return s.Snapshot(), err
	}
	token := s.Token()
	if token == "" {
		return s.Snapshot(), domain.ErrNotAuthenticated
	}

	s.transition(func(st *domain.Session) { st.IsLoading = true })
	raw, err := querycache.Mutate(ctx, s.queries, func(ctx context.Context) (map[string]any, error) {
		return s.auth.Register(ctx, token, backend.RegisterInput{FirstName: in.FirstName, LastName: in.LastName, Email: in.Email})
	})
	if err != nil {
		snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
		sessionTransitionsCounter.WithLabelValues("register", "error").Inc()
		return snap, err
	}
	user, err := domain.NormalizeUser(raw)
	if err != nil {
		snap := s.transition(func(st *domain.Session) { st.IsLoading = false })
		return snap, fmt.Errorf("normalizing registered user: %w", err)
	}

	snap := s.transition(func(st *domain.Session) {
		if st.Token != token {
			// Logged out or refreshed meanwhile; keep the newer state.
			st.IsLoading = false
			return
		}
		st.User = user
		st.NeedsRegistration = false
		st.IsLoading = false
	})
	sessionTransitionsCounter.WithLabelValues("register", "ok").Inc()
	return snap, nil
}

// Refresh renews the token pair. A backend rejection resets the whole
// session and clears the stored tokens; transport failures leave it intact.
// Concurrent calls share one backend request.
func (s *SessionContainer) Refresh(ctx context.Context) (domain.Session, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return s.Snapshot(), err
	}
	return v.(domain.Session), nil
}

func (s *SessionContainer) refresh(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	refresh := s.state.RefreshToken
	s.mu.Unlock()
	if refresh == "" {
		stored, err := localstore.GetString(ctx, s.store, localstore.KeyAuthRefreshToken)
		if err != nil {
			return domain.Session{}, fmt.Errorf("reading stored refresh token: %w", err)
		}
		refresh = stored
	}
	if refresh == "" {
		return domain.Session{}, domain.NewAuthError(domain.ErrNotAuthenticated, msgRefreshRejected, nil)
	}

	res, err := querycache.Mutate(ctx, s.queries, func(ctx context.Context) (*backend.VerifyResult, error) {
		return s.auth.RefreshToken(ctx, refresh)
	})
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.IsClientError() || err == nil && res.Token == "" {
		if resetErr := s.reset(ctx); resetErr != nil {
			s.logger.ErrorContext(ctx, "Clearing stored tokens after rejected refresh failed", "error", resetErr)
		}
		sessionTransitionsCounter.WithLabelValues("refresh", "rejected").Inc()
		s.logger.InfoContext(ctx, "Refresh token rejected, session reset", "refresh_token", logger.Fingerprint(refresh))
		return domain.Session{}, domain.NewAuthError(domain.ErrRefreshRejected, msgRefreshRejected, err)
	}
	if err != nil {
		sessionTransitionsCounter.WithLabelValues("refresh", "error").Inc()
		return domain.Session{}, fmt.Errorf("refreshing token: %w", err)
	}

	newRefresh := res.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}
	var user *domain.User
	if len(res.User) > 0 {
		if u, err := domain.NormalizeUser(res.User); err == nil {
			user = u
		}
	}
	if err := s.persistTokens(ctx, res.Token, newRefresh); err != nil {
		return domain.Session{}, err
	}

	snap := s.transition(func(st *domain.Session) {
		st.Token = res.Token
		st.RefreshToken = newRefresh
		st.TokenExpiresAt = tokenExpiry(res.Token)
		if user != nil {
			st.User = user
		}
	})
	sessionTransitionsCounter.WithLabelValues("refresh", "ok").Inc()
	return snap, nil
}

// EnsureFresh refreshes the token when it expires within skew. It is a no-op
// for anonymous sessions and tokens without an exp claim.
func (s *SessionContainer) EnsureFresh(ctx context.Context, skew time.Duration) error {
	s.mu.Lock()
	exp := s.state.TokenExpiresAt
	authed := s.state.IsAuthenticated
	s.mu.Unlock()
	if !authed || exp.IsZero() || s.now().Add(skew).Before(exp) {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// Logout clears the tokens from the store and resets the in-memory state.
// Memory is reset even when the store delete fails.
func (s *SessionContainer) Logout(ctx context.Context) error {
	err := s.reset(ctx)
	sessionTransitionsCounter.WithLabelValues("logout", result(err)).Inc()
	return err
}

func (s *SessionContainer) reset(ctx context.Context) error {
	s.mu.Lock()
	token := s.state.Token
	s.mu.Unlock()

	err := s.store.Delete(ctx, localstore.KeyAuthToken, localstore.KeyAuthRefreshToken)
	if token != "" {
		s.queries.Remove(querycache.Key("/api/v1/auth/me", logger.Fingerprint(token)))
	}
	s.transition(func(st *domain.Session) { *st = domain.Session{} })
	if err != nil {
		return fmt.Errorf("clearing stored tokens: %w", err)
	}
	return nil
}

func (s *SessionContainer) persistTokens(ctx context.Context, token, refresh string) error {
	if err := localstore.SetString(ctx, s.store, localstore.KeyAuthToken, token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	if err := localstore.SetString(ctx, s.store, localstore.KeyAuthRefreshToken, refresh); err != nil {
		return fmt.Errorf("persisting refresh token: %w", err)
	}
	return nil
}

func classifyVerifyError(err error) error {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsClientError() {
		return err
	}
	if apiErr.Status == http.StatusGone || strings.EqualFold(apiErr.Code, "OTP_EXPIRED") {
		return domain.NewAuthError(domain.ErrOTPExpired, displayMessage(err, msgOTPExpired), err)
	}
	return domain.NewAuthError(domain.ErrInvalidOTP, displayMessage(err, msgInvalidOTP), err)
}

// displayMessage prefers the backend's own message for client errors.
func displayMessage(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.IsClientError() && apiErr.Message != "" && apiErr.Message != http.StatusText(apiErr.Status) {
		return apiErr.Message
	}
	return fallback
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend is the one that verifies tokens.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
