package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) SendOTP(ctx context.Context, phone string) error {
	return m.Called(ctx, phone).Error(0)
}

func (m *mockAuth) VerifyOTP(ctx context.Context, phone, code string) (*backend.VerifyResult, error) {
	args := m.Called(ctx, phone, code)
	res, _ := args.Get(0).(*backend.VerifyResult)
	return res, args.Error(1)
}

func (m *mockAuth) RefreshToken(ctx context.Context, refreshToken string) (*backend.VerifyResult, error) {
	args := m.Called(ctx, refreshToken)
	res, _ := args.Get(0).(*backend.VerifyResult)
	return res, args.Error(1)
}

func (m *mockAuth) Me(ctx context.Context, token string) (map[string]any, error) {
	args := m.Called(ctx, token)
	res, _ := args.Get(0).(map[string]any)
	return res, args.Error(1)
}

func (m *mockAuth) Register(ctx context.Context, token string, in backend.RegisterInput) (map[string]any, error) {
	args := m.Called(ctx, token, in)
	res, _ := args.Get(0).(map[string]any)
	return res, args.Error(1)
}

// fakeProducts serves products from a map and counts calls per id.
type fakeProducts struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	fail     map[string]error
	calls    map[string]int
}

func newFakeProducts(ps ...*domain.Product) *fakeProducts {
	f := &fakeProducts{products: map[string]*domain.Product{}, fail: map[string]error{}, calls: map[string]int{}}
	for _, p := range ps {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, &backend.APIError{Endpoint: "GET /api/v1/public/products/" + id, Status: 404, Message: "not found"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) setFail(id string, err error) {
	f.mu.Lock()
	f.fail[id] = err
	f.mu.Unlock()
}

// failingStore wraps a store and fails writes while failWrites is set.
type failingStore struct {
	localstore.Store
	mu         sync.Mutex
	failWrites bool
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) setFailing(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Store.Delete(ctx, keys...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestQueries() *querycache.Cache {
	return querycache.New(querycache.Options{Name: "test", Sleep: noSleep, Logger: logger.Discard()})
}

func signedToken(exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return s
}
