package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
	"github.com/banoo-shop/storefront/internal/storefront_service/guard"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
)

const (
	testPhone = "09123456789"
	testCode  = "123456"
)

// fakeBackend stands in for the REST backend across auth, catalog and orders.
type fakeBackend struct {
	mu         sync.Mutex
	user       map[string]any
	verifyErr  error
	products   map[string]*domain.Product
	categories []domain.Category
	orders     []domain.Order
	created    []domain.CreateOrderInput
	calls      map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		user: map[string]any{"id": "u-1", "first_name": "سارا", "last_name": "احمدی"},
		products: map[string]*domain.Product{
			"p1": {ID: "p1", Slug: "linen-shirt", Name: "پیراهن کتان", Price: 450000, Stock: 3},
			"p2": {ID: "p2", Slug: "wool-scarf", Name: "شال پشمی", Price: 200000, Discount: 10, Stock: 8},
		},
		categories: []domain.Category{{ID: "c1", Name: "پوشاک", Slug: "clothing"}},
		calls:      map[string]int{},
	}
}

func (f *fakeBackend) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeBackend) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) SendOTP(context.Context, string) error {
	f.count("send_otp")
	return nil
}

func (f *fakeBackend) VerifyOTP(_ context.Context, _, code string) (*backend.VerifyResult, error) {
	f.count("verify_otp")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &backend.VerifyResult{User: f.user, Token: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (f *fakeBackend) RefreshToken(context.Context, string) (*backend.VerifyResult, error) {
	f.count("refresh")
	return &backend.VerifyResult{Token: "access-rotated", RefreshToken: "refresh-rotated"}, nil
}

func (f *fakeBackend) Me(context.Context, string) (map[string]any, error) {
	f.count("me")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, nil
}

func (f *fakeBackend) Register(_ context.Context, _ string, in backend.RegisterInput) (map[string]any, error) {
	f.count("register")
	return map[string]any{"id": "u-new", "first_name": in.FirstName, "last_name": in.LastName}, nil
}

func (f *fakeBackend) ListProducts(context.Context, domain.ProductQuery) (*domain.ProductList, error) {
	f.count("list_products")
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &domain.ProductList{Page: 1}
	for _, id := range []string{"p1", "p2"} {
		list.Items = append(list.Items, *f.products[id])
	}
	list.Total = len(list.Items)
	return list, nil
}

func (f *fakeBackend) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.count("get_product")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id || p.Slug == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &backend.APIError{Endpoint: "GET /api/v1/public/products/" + id, Status: http.StatusNotFound, Message: "Not Found"}
}

func (f *fakeBackend) ListCategories(context.Context) ([]domain.Category, error) {
	f.count("list_categories")
	return f.categories, nil
}

func (f *fakeBackend) ListOrders(context.Context, string) ([]domain.Order, error) {
	f.count("list_orders")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Order(nil), f.orders...), nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, _ string, in domain.CreateOrderInput) (*domain.Order, error) {
	f.count("create_order")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	o := domain.Order{ID: "o-1", Status: "pending", Items: in.Items, Address: in.Address, CreatedAt: time.Now()}
	f.orders = append(f.orders, o)
	return &o, nil
}

// recordingRevalidator captures every request instead of calling out.
type recordingRevalidator struct {
	mu   sync.Mutex
	reqs []revalidation.Request
}

func (r *recordingRevalidator) Revalidate(_ context.Context, req revalidation.Request) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req.Normalized())
	r.mu.Unlock()
}

func (r *recordingRevalidator) RevalidateProduct(ctx context.Context, slug string, extra revalidation.Request) {
	r.Revalidate(ctx, revalidation.ProductRequest(slug, extra))
}

func (r *recordingRevalidator) Go(ctx context.Context, req revalidation.Request) {
	r.Revalidate(ctx, req)
}

func (r *recordingRevalidator) all() []revalidation.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]revalidation.Request(nil), r.reqs...)
}

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func noSleep(context.Context, time.Duration) error { return nil }

type testEnv struct {
	server    *httptest.Server
	client    *http.Client
	backend   *fakeBackend
	reval     *recordingRevalidator
	publisher *fakePublisher
	queries   *querycache.Cache
	pages     *pagecache.Cache
	registry  *app.Registry
	store     *localstore.MemoryStore
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	log := logger.Discard()
	env := &testEnv{
		backend:   newFakeBackend(),
		reval:     &recordingRevalidator{},
		publisher: &fakePublisher{},
		queries:   querycache.New(querycache.Options{Name: "test", Sleep: noSleep, Logger: log}),
		pages:     pagecache.New(0),
		store:     localstore.NewMemoryStore(),
	}
	env.registry = app.NewRegistry(app.RegistryConfig{
		Store:    env.store,
		Auth:     env.backend,
		Products: env.backend,
		Queries:  env.queries,
	}, log)

	router := NewRouter(RouterDeps{
		Registry:    env.registry,
		Backend:     env.backend,
		Queries:     env.queries,
		Pages:       env.pages,
		Revalidator: env.reval,
		Revalidate:  NewRevalidateHandler(env.pages, env.queries, env.publisher, "instance-a", secret, log),
		Guard:       guard.Config{AuthRedirect: "/auth", DefaultRoute: "/"},
		Logger:      log,
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = env.server.Client()
	env.client.Jar = jar
	env.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return env
}

// do sends body as JSON (when non-nil) and returns the response with its body read.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/auth/login", LoginRequest{Phone: testPhone})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, body := e.do(t, http.MethodPost, "/auth/verify-otp", VerifyOTPRequest{Phone: testPhone, Code: testCode})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}
