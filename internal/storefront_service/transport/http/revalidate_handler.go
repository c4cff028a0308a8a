package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/app"
	"github.com/banoo-shop/storefront/internal/storefront_service/pagecache"
)

// SubjectRevalidated carries RevalidatedEvent between replicas.
const SubjectRevalidated = "storefront.revalidated"

// RevalidateHandler implements POST /api/revalidate: it drops the matching
// rendered pages and cached backend reads, then tells the other replicas.
type RevalidateHandler struct {
	pages      *pagecache.Cache
	queries    *querycache.Cache
	publisher  Publisher
	instanceID string
	secret     string
	now        func() time.Time
	logger     *slog.Logger
}

// NewRevalidateHandler builds the handler; publisher may be nil for a single replica.
func NewRevalidateHandler(pages *pagecache.Cache, queries *querycache.Cache, publisher Publisher, instanceID, secret string, logger *slog.Logger) *RevalidateHandler {
	return &RevalidateHandler{
		pages:      pages,
		queries:    queries,
		publisher:  publisher,
		instanceID: instanceID,
		secret:     secret,
		now:        time.Now,
		logger:     logger.With("handler", "revalidate"),
	}
}

func (h *RevalidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.secret != "" {
		got := r.Header.Get(revalidation.SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.WarnContext(ctx, "Revalidation rejected: bad secret")
			jsonResponse(w, http.StatusUnauthorized, RevalidateErrorResponse{Message: "Invalid revalidation secret", Error: "unauthorized"})
			return
		}
	}

	var req RevalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(ctx, "Revalidation request malformed", "error", err)
		jsonResponse(w, http.StatusInternalServerError, RevalidateErrorResponse{Message: "Error revalidating", Error: err.Error()})
		return
	}

	tags := append([]string(nil), req.Tags...)
	if req.Tag != "" {
		tags = append(tags, req.Tag)
	}
	norm := revalidation.Request{Tags: tags, Paths: req.Path}.Normalized()

	pagesDropped, queriesMarked := h.Apply(norm.Tags, norm.Paths)
	h.logger.InfoContext(ctx, "Revalidated", "tags", norm.Tags, "paths", norm.Paths,
		"pages_dropped", pagesDropped, "queries_marked", queriesMarked)
	h.broadcast(r, norm)

	jsonResponse(w, http.StatusOK, RevalidateResponse{Revalidated: true, Now: h.now().UnixMilli()})
}

// Apply invalidates local caches for tags and paths and reports how many
// pages were dropped and cached reads marked stale.
func (h *RevalidateHandler) Apply(tags, paths []string) (int, int) {
	pagesDropped := h.pages.InvalidateTags(tags...) + h.pages.InvalidatePaths(paths...)
	queriesMarked := 0
	for _, prefix := range queryPrefixes(tags, paths) {
		queriesMarked += h.queries.Invalidate(prefix)
	}
	return pagesDropped, queriesMarked
}

// queryPrefixes maps page tags and paths onto the query cache keys that feed them.
func queryPrefixes(tags, paths []string) []string {
	var out []string
	for _, t := range tags {
		switch {
		case t == revalidation.TagProducts:
			out = append(out, productsEndpoint)
		case strings.HasPrefix(t, "product:"):
			out = append(out, app.ProductKey(strings.TrimPrefix(t, "product:")))
		case t == TagCategories:
			out = append(out, categoriesEndpoint)
		case t == TagOrders:
			out = append(out, ordersEndpoint)
		}
	}
	for _, p := range paths {
		p = strings.TrimRight(p, "/")
		switch {
		case p == revalidation.PathProducts:
			out = append(out, productsEndpoint)
		case strings.HasPrefix(p, revalidation.PathProducts+"/"):
			out = append(out, app.ProductKey(strings.TrimPrefix(p, revalidation.PathProducts+"/")))
		case p == "/categories":
			out = append(out, categoriesEndpoint)
		}
	}
	return out
}

func (h *RevalidateHandler) broadcast(r *http.Request, req revalidation.Request) {
	if h.publisher == nil || req.IsEmpty() {
		return
	}
	data, err := json.Marshal(RevalidatedEvent{Origin: h.instanceID, Tags: req.Tags, Paths: req.Paths, At: h.now()})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Encoding revalidation event failed", "error", err)
		return
	}
	if err := h.publisher.Publish(r.Context(), SubjectRevalidated, data); err != nil {
		h.logger.WarnContext(r.Context(), "Broadcasting revalidation failed", "error", err)
	}
}

// HandleBroadcast applies a revalidation published by another replica.
// Events from this instance are ignored.
func (h *RevalidateHandler) HandleBroadcast(subject string, data []byte) {
	var ev RevalidatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Warn("Dropping malformed revalidation event", "subject", subject, "error", err)
		return
	}
	if ev.Origin == h.instanceID {
		return
	}
	pagesDropped, queriesMarked := h.Apply(ev.Tags, ev.Paths)
	h.logger.Info("Applied remote revalidation", "origin", ev.Origin, "pages_dropped", pagesDropped, "queries_marked", queriesMarked)
}
