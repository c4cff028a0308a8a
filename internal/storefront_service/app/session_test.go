package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

const (
	testPhone = "09123456789"
	testCode  = "123456"
)

func newTestSession(t *testing.T) (*SessionContainer, *mockAuth, localstore.Store) {
	t.Helper()
	auth := &mockAuth{}
	store := localstore.Scoped(localstore.NewMemoryStore(), "c1")
	s := NewSessionContainer(store, auth, newTestQueries(), logger.Discard())
	require.NoError(t, s.Hydrate(context.Background()))
	return s, auth, store
}

func verifiedResult(token string) *backend.VerifyResult {
	return &backend.VerifyResult{
		User:         map[string]any{"id": 42, "first_name": "Sara", "last_name": "Ahmadi", "is_admin": "1", "is_superuser": 0},
		Token:        token,
		RefreshToken: "refresh-1",
	}
}

func TestSession_StartsEmptyAfterHydrate(t *testing.T) {
	s, _, _ := newTestSession(t)
	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.User)
}

func TestSession_LoginValidatesBeforeNetwork(t *testing.T) {
	s, auth, _ := newTestSession(t)

	err := s.Login(context.Background(), "0912")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "phone")

	_, err = s.VerifyOTP(context.Background(), testPhone, "12ab56")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "code")

	auth.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything)
	auth.AssertNotCalled(t, "VerifyOTP", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_LoginAndVerifyKeepsCart(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemoryStore()
	store := localstore.Scoped(mem, "c1")
	auth := &mockAuth{}
	queries := newTestQueries()

	cart := NewCartContainer(store, newFakeProducts(), queries, 0, logger.Discard())
	_, err := cart.AddItem(ctx, AddItemInput{ProductID: "p1", Color: "red", Size: "M", Quantity: 2})
	require.NoError(t, err)
	before := cart.Items()

	s := NewSessionContainer(store, auth, queries, logger.Discard())
	require.NoError(t, s.Hydrate(ctx))

	token := signedToken(time.Now().Add(time.Hour))
	auth.On("SendOTP", mock.Anything, testPhone).Return(nil).Once()
	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).Return(verifiedResult(token), nil).Once()

	require.NoError(t, s.Login(ctx, testPhone))
	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Equal(t, testPhone, snap.PendingPhone)

	snap, err = s.VerifyOTP(ctx, testPhone, testCode)
	require.NoError(t, err)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.PendingPhone)
	require.NotNil(t, snap.User)
	assert.Equal(t, "42", snap.User.ID)
	assert.True(t, snap.User.IsAdmin)
	assert.False(t, snap.User.IsSuperuser)
	assert.WithinDuration(t, time.Now().Add(time.Hour), snap.TokenExpiresAt, 2*time.Second)

	stored, err := localstore.GetString(ctx, store, localstore.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	reloaded := NewCartContainer(store, newFakeProducts(), queries, 0, logger.Discard())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, before, cart.Items())
	require.Len(t, reloaded.Items(), 1)
	assert.Equal(t, before[0].Persisted(), reloaded.Items()[0].Persisted())
	auth.AssertExpectations(t)
}

func TestSession_VerifyDistinguishesInvalidAndExpired(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"wrong code", &backend.APIError{Status: http.StatusBadRequest, Message: "کد نادرست"}, domain.ErrInvalidOTP},
		{"expired by status", &backend.APIError{Status: http.StatusGone}, domain.ErrOTPExpired},
		{"expired by code", &backend.APIError{Status: http.StatusBadRequest, Code: "OTP_EXPIRED"}, domain.ErrOTPExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, auth, _ := newTestSession(t)
			auth.On("VerifyOTP", mock.Anything, testPhone, testCode).Return(nil, tt.err).Once()

			snap, err := s.VerifyOTP(context.Background(), testPhone, testCode)
			require.ErrorIs(t, err, tt.want)
			var authErr *domain.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.NotEmpty(t, authErr.Message)
			assert.False(t, snap.IsAuthenticated)
			assert.False(t, snap.IsLoading)
			auth.AssertExpectations(t)
		})
	}
}

func TestSession_VerifyRejectsConcurrentSubmit(t *testing.T) {
	s, auth, _ := newTestSession(t)
	release := make(chan struct{})
	started := make(chan struct{})
	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(verifiedResult("tok"), nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = s.VerifyOTP(context.Background(), testPhone, testCode)
	}()

	<-started
	assert.True(t, s.Snapshot().IsLoading)
	_, err := s.VerifyOTP(context.Background(), testPhone, testCode)
	require.ErrorIs(t, err, domain.ErrRequestInFlight)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.True(t, s.Snapshot().IsAuthenticated)
	auth.AssertNumberOfCalls(t, "VerifyOTP", 1)
}

func TestSession_NewUserNeedsRegistration(t *testing.T) {
	ctx := context.Background()
	s, auth, _ := newTestSession(t)
	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).
		Return(&backend.VerifyResult{Token: "tok", RefreshToken: "ref", IsNewUser: true}, nil).Once()
	auth.On("Register", mock.Anything, "tok", backend.RegisterInput{FirstName: "Sara", LastName: "Ahmadi"}).
		Return(map[string]any{"id": "9", "first_name": "Sara", "last_name": "Ahmadi"}, nil).Once()

	snap, err := s.VerifyOTP(ctx, testPhone, testCode)
	require.NoError(t, err)
	assert.True(t, snap.NeedsRegistration)
	assert.False(t, snap.IsAuthenticated)

	snap, err = s.CompleteRegistration(ctx, RegisterInput{FirstName: "Sara", LastName: "Ahmadi"})
	require.NoError(t, err)
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.NeedsRegistration)
	assert.Equal(t, domain.RoleCustomer, snap.User.Role)
	auth.AssertExpectations(t)
}

func loggedIn(t *testing.T) (*SessionContainer, *mockAuth, localstore.Store) {
	t.Helper()
	s, auth, store := newTestSession(t)
	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).Return(verifiedResult("tok-1"), nil).Once()
	_, err := s.VerifyOTP(context.Background(), testPhone, testCode)
	require.NoError(t, err)
	return s, auth, store
}

func TestSession_RefreshRejectedDestroysSession(t *testing.T) {
	ctx := context.Background()
	s, auth, store := loggedIn(t)
	auth.On("RefreshToken", mock.Anything, "refresh-1").
		Return(nil, &backend.APIError{Status: http.StatusUnauthorized, Message: "expired"}).Once()

	_, err := s.Refresh(ctx)
	require.ErrorIs(t, err, domain.ErrRefreshRejected)

	snap := s.Snapshot()
	assert.Equal(t, domain.Session{}, snap)
	_, found, err := store.Get(ctx, localstore.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = store.Get(ctx, localstore.KeyAuthRefreshToken)
	require.NoError(t, err)
	assert.False(t, found)
	auth.AssertExpectations(t)
}

func TestSession_RefreshNetworkErrorKeepsSession(t *testing.T) {
	s, auth, _ := loggedIn(t)
	netErr := &backend.NetworkError{Endpoint: "POST /api/v1/auth/refresh", Err: context.DeadlineExceeded}
	auth.On("RefreshToken", mock.Anything, "refresh-1").Return(nil, netErr)

	_, err := s.Refresh(context.Background())
	var got *backend.NetworkError
	require.ErrorAs(t, err, &got)
	assert.True(t, s.Snapshot().IsAuthenticated)
	// one retry under the mutation budget
	auth.AssertNumberOfCalls(t, "RefreshToken", 2)
}

func TestSession_RefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	s, auth, store := loggedIn(t)
	auth.On("RefreshToken", mock.Anything, "refresh-1").
		Return(&backend.VerifyResult{Token: "tok-2", RefreshToken: "refresh-2"}, nil).Once()

	snap, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "Sara", snap.User.FirstName)
	assert.Equal(t, "tok-2", s.Token())

	stored, err := localstore.GetString(ctx, store, localstore.KeyAuthRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", stored)
}

func TestSession_EnsureFreshRefreshesNearExpiry(t *testing.T) {
	s, auth, _ := newTestSession(t)
	soon := signedToken(time.Now().Add(10 * time.Second))
	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).Return(verifiedResult(soon), nil).Once()
	_, err := s.VerifyOTP(context.Background(), testPhone, testCode)
	require.NoError(t, err)

	later := signedToken(time.Now().Add(time.Hour))
	auth.On("RefreshToken", mock.Anything, "refresh-1").
		Return(&backend.VerifyResult{Token: later}, nil).Once()

	require.NoError(t, s.EnsureFresh(context.Background(), 30*time.Second))
	assert.Equal(t, later, s.Token())
	require.NoError(t, s.EnsureFresh(context.Background(), 30*time.Second))
	auth.AssertExpectations(t)
}

func TestSession_LogoutClearsStoreBeforeReturning(t *testing.T) {
	ctx := context.Background()
	s, _, store := loggedIn(t)

	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.Snapshot().IsAuthenticated)
	_, found, err := store.Get(ctx, localstore.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSession_ObserversSeeEveryAuthChange(t *testing.T) {
	s, auth, _ := newTestSession(t)
	var mu sync.Mutex
	var seen []bool
	unsubscribe := s.Subscribe(func(snap domain.Session) {
		mu.Lock()
		seen = append(seen, snap.IsAuthenticated)
		mu.Unlock()
	})

	auth.On("VerifyOTP", mock.Anything, testPhone, testCode).Return(verifiedResult("tok"), nil).Once()
	_, err := s.VerifyOTP(context.Background(), testPhone, testCode)
	require.NoError(t, err)

	mu.Lock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1], "observer must see the authenticated state before VerifyOTP returns")
	mu.Unlock()

	require.NoError(t, s.Logout(context.Background()))
	mu.Lock()
	assert.False(t, seen[len(seen)-1])
	count := len(seen)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, s.Logout(context.Background()))
	mu.Lock()
	assert.Len(t, seen, count)
	mu.Unlock()
}

func TestSession_HydrateFromStoredToken(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "c2")
	token := signedToken(time.Now().Add(time.Hour))
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthToken, token))
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthRefreshToken, "ref"))

	auth := &mockAuth{}
	auth.On("Me", mock.Anything, token).Return(map[string]any{"id": 5, "is_superuser": true}, nil).Once()
	s := NewSessionContainer(store, auth, newTestQueries(), logger.Discard())
	assert.True(t, s.Snapshot().IsLoading)

	require.NoError(t, s.Hydrate(ctx))
	snap := s.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, domain.RoleSuperuser, snap.User.Role)
	auth.AssertExpectations(t)
}

func TestSession_HydrateWithRejectedTokenRefreshes(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "c3")
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthToken, "old"))
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthRefreshToken, "ref"))

	auth := &mockAuth{}
	auth.On("Me", mock.Anything, "old").Return(nil, &backend.APIError{Status: http.StatusUnauthorized}).Once()
	auth.On("RefreshToken", mock.Anything, "ref").Return(nil, &backend.APIError{Status: http.StatusUnauthorized}).Once()
	s := NewSessionContainer(store, auth, newTestQueries(), logger.Discard())

	err := s.Hydrate(ctx)
	require.ErrorIs(t, err, domain.ErrRefreshRejected)
	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	auth.AssertExpectations(t)
}

func TestSession_HydrateRefreshWithoutUserLoadsIt(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "c4")
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthToken, "old"))
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthRefreshToken, "ref"))

	auth := &mockAuth{}
	auth.On("Me", mock.Anything, "old").Return(nil, &backend.APIError{Status: http.StatusUnauthorized}).Once()
	auth.On("RefreshToken", mock.Anything, "ref").Return(&backend.VerifyResult{Token: "new"}, nil).Once()
	auth.On("Me", mock.Anything, "new").Return(map[string]any{"id": 5}, nil).Once()
	s := NewSessionContainer(store, auth, newTestQueries(), logger.Discard())

	require.NoError(t, s.Hydrate(ctx))
	snap := s.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "new", snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, "5", snap.User.ID)

	stored, err := localstore.GetString(ctx, store, localstore.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "new", stored)
	auth.AssertExpectations(t)
}

func TestSession_ResumeUserAfterOutage(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "c5")
	require.NoError(t, localstore.SetString(ctx, store, localstore.KeyAuthToken, "tok"))

	outage := &backend.NetworkError{Endpoint: "GET /api/v1/auth/me", Err: errors.New("connection refused")}
	auth := &mockAuth{}
	// Each load makes one attempt plus three retries.
	auth.On("Me", mock.Anything, "tok").Return(nil, outage).Times(8)
	auth.On("Me", mock.Anything, "tok").Return(map[string]any{"id": 5}, nil).Once()
	s := NewSessionContainer(store, auth, newTestQueries(), logger.Discard())
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	require.Error(t, s.Hydrate(ctx))
	snap := s.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, "tok", snap.Token)

	require.Error(t, s.ResumeUser(ctx))
	require.NoError(t, s.ResumeUser(ctx), "attempts inside the retry interval are skipped")
	assert.False(t, s.Snapshot().IsAuthenticated)

	clock = clock.Add(userRetryInterval)
	require.NoError(t, s.ResumeUser(ctx))
	snap = s.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "5", snap.User.ID)

	require.NoError(t, s.ResumeUser(ctx))
	auth.AssertExpectations(t)
	auth.AssertNumberOfCalls(t, "Me", 9)
}
