package revalidation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

type recorded struct {
	Tags   []string `json:"tags"`
	Paths  []string `json:"path"`
	Secret string   `json:"-"`
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32, chan recorded) {
	t.Helper()
	var calls atomic.Int32
	got := make(chan recorded, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var rec recorded
		_ = json.NewDecoder(r.Body).Decode(&rec)
		rec.Secret = r.Header.Get(SecretHeader)
		got <- rec
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, got
}

func TestRevalidate_EmptyRequestMakesNoCall(t *testing.T) {
	srv, calls, _ := newRecordingServer(t, http.StatusOK)
	d := NewDispatcher(logger.Discard(), srv.URL, "", srv.Client())

	d.Revalidate(context.Background(), Request{})
	d.Revalidate(context.Background(), Request{Tags: []string{"", "  "}, Paths: []string{""}})

	assert.Equal(t, int32(0), calls.Load())
}

func TestRevalidate_DedupesAndSendsSecret(t *testing.T) {
	srv, calls, got := newRecordingServer(t, http.StatusOK)
	d := NewDispatcher(logger.Discard(), srv.URL, "s3cret", srv.Client())

	d.Revalidate(context.Background(), Request{
		Tags:  []string{"products", "orders", "products"},
		Paths: []string{"/orders", "/orders"},
	})

	require.Equal(t, int32(1), calls.Load())
	rec := <-got
	assert.Equal(t, []string{"products", "orders"}, rec.Tags)
	assert.Equal(t, []string{"/orders"}, rec.Paths)
	assert.Equal(t, "s3cret", rec.Secret)
}

func TestRevalidate_FailureIsSwallowed(t *testing.T) {
	srv, calls, _ := newRecordingServer(t, http.StatusInternalServerError)
	d := NewDispatcher(logger.Discard(), srv.URL, "", srv.Client())

	assert.NotPanics(t, func() {
		d.Revalidate(context.Background(), Request{Tags: []string{"products"}})
	})
	assert.Equal(t, int32(1), calls.Load())

	dead := NewDispatcher(logger.Discard(), "http://127.0.0.1:1/api/revalidate", "", nil)
	assert.NotPanics(t, func() {
		dead.Revalidate(context.Background(), Request{Paths: []string{"/"}})
	})
}

func TestSend_ReportsStatus(t *testing.T) {
	srv, calls, _ := newRecordingServer(t, http.StatusUnauthorized)
	d := NewDispatcher(logger.Discard(), srv.URL, "", srv.Client())

	require.NoError(t, d.Send(context.Background(), Request{}))
	assert.Equal(t, int32(0), calls.Load())

	err := d.Send(context.Background(), Request{Tags: []string{"products"}})
	var rerr *domain.RevalidationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnauthorized, rerr.Status)
	assert.Equal(t, []string{"products"}, rerr.Tags)
}

func TestProductRequest(t *testing.T) {
	req := ProductRequest("manto-1", Request{Tags: []string{"products", "orders"}, Paths: []string{"/products/manto-1", "/orders"}})
	assert.Equal(t, []string{"products", "product:manto-1", "orders"}, req.Tags)
	assert.Equal(t, []string{"/products", "/products/manto-1", "/orders"}, req.Paths)

	noSlug := ProductRequest("", Request{})
	assert.Equal(t, []string{"products"}, noSlug.Tags)
	assert.Equal(t, []string{"/products"}, noSlug.Paths)
}

func TestGo_RunsDetached(t *testing.T) {
	srv, _, got := newRecordingServer(t, http.StatusOK)
	d := NewDispatcher(logger.Discard(), srv.URL, "", srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Go(ctx, Request{Tags: []string{"categories"}})

	rec := <-got
	assert.Equal(t, []string{"categories"}, rec.Tags)
}
