// Package revalidation tells the rendering server which cached pages went
// stale after a mutation. Calls are best-effort and never fail the caller.
package revalidation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

const (
	TagProducts  = "products"
	PathProducts = "/products"

	SecretHeader = "X-Revalidate-Secret"
)

var revalidationsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_revalidations_total",
		Help: "Revalidation requests by outcome.",
	},
	[]string{"result"}, // sent, skipped, failed
)

// Request names the tags and literal paths to invalidate.
type Request struct {
	Tags  []string `json:"tags,omitempty"`
	Paths []string `json:"path,omitempty"`
}

// IsEmpty reports whether there is nothing to send.
func (r Request) IsEmpty() bool { return len(r.Tags) == 0 && len(r.Paths) == 0 }

// Normalized drops blanks and duplicates, keeping first-seen order.
func (r Request) Normalized() Request {
	return Request{Tags: dedupe(r.Tags), Paths: dedupe(r.Paths)}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ProductRequest builds the invalidation set for a product change: the
// listing always, the product page when slug is known, then extra.
func ProductRequest(slug string, extra Request) Request {
	req := Request{Tags: []string{TagProducts}, Paths: []string{PathProducts}}
	if slug = strings.TrimSpace(slug); slug != "" {
		req.Tags = append(req.Tags, "product:"+slug)
		req.Paths = append(req.Paths, PathProducts+"/"+slug)
	}
	req.Tags = append(req.Tags, extra.Tags...)
	req.Paths = append(req.Paths, extra.Paths...)
	return req.Normalized()
}

type Dispatcher struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDispatcher(logger *slog.Logger, endpoint, secret string, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Dispatcher{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: httpClient,
		logger:     logger.With("component", "revalidation_dispatcher"),
	}
}

// Revalidate sends req to the revalidation endpoint. Failures are logged and
// counted, never returned.
func (d *Dispatcher) Revalidate(ctx context.Context, req Request) {
	req = req.Normalized()
	if req.IsEmpty() {
		revalidationsCounter.WithLabelValues("skipped").Inc()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			revalidationsCounter.WithLabelValues("failed").Inc()
			d.logger.ErrorContext(ctx, "Revalidation panicked", "panic", r, "tags", req.Tags, "paths", req.Paths)
		}
	}()

	if err := d.send(ctx, req); err != nil {
		revalidationsCounter.WithLabelValues("failed").Inc()
		d.logger.WarnContext(ctx, "Revalidation failed", "error", err)
		return
	}
	revalidationsCounter.WithLabelValues("sent").Inc()
	d.logger.DebugContext(ctx, "Revalidated", "tags", req.Tags, "paths", req.Paths)
}

// RevalidateProduct invalidates the listing and, with a slug, the product page.
func (d *Dispatcher) RevalidateProduct(ctx context.Context, slug string, extra Request) {
	d.Revalidate(ctx, ProductRequest(slug, extra))
}

// Go runs Revalidate on a context detached from ctx's cancellation.
func (d *Dispatcher) Go(ctx context.Context, req Request) {
	detached := context.WithoutCancel(ctx)
	go d.Revalidate(detached, req)
}

// Send is Revalidate for callers that need the outcome. An empty request
// sends nothing and succeeds.
func (d *Dispatcher) Send(ctx context.Context, req Request) error {
	req = req.Normalized()
	if req.IsEmpty() {
		return nil
	}
	return d.send(ctx, req)
}

func (d *Dispatcher) send(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &domain.RevalidationError{Tags: req.Tags, Paths: req.Paths, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.RevalidationError{Tags: req.Tags, Paths: req.Paths, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		httpReq.Header.Set(SecretHeader, d.secret)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return &domain.RevalidationError{Tags: req.Tags, Paths: req.Paths, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.RevalidationError{Tags: req.Tags, Paths: req.Paths, Status: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}
