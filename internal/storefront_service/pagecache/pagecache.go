// Package pagecache stores rendered GET responses keyed by request URI and
// tagged for on-demand invalidation by tag or by path.
package pagecache

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pageLookupsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_pagecache_lookups_total",
			Help: "Page cache lookups by result.",
		},
		[]string{"result"},
	)
	pageInvalidationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_pagecache_invalidated_total",
			Help: "Page cache entries dropped by invalidation kind.",
		},
		[]string{"kind"},
	)
)

type Entry struct {
	Status      int
	ContentType string
	Body        []byte
	Path        string
	Tags        []string
	StoredAt    time.Time
}

// Cache holds pages until they are invalidated or, with a TTL, expire.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// New returns a cache; ttl <= 0 keeps pages until invalidated.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: map[string]*Entry{}, ttl: ttl, now: time.Now}
}

func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return *e, true
}

func (c *Cache) Put(key string, e Entry) {
	if e.Path == "" {
		e.Path = pathOf(key)
	}
	e.StoredAt = c.now()
	c.mu.Lock()
	c.entries[key] = &e
	c.mu.Unlock()
}

// InvalidateTags drops every page carrying one of tags.
func (c *Cache) InvalidateTags(tags ...string) int {
	if len(tags) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		for _, t := range e.Tags {
			if _, ok := want[t]; ok {
				delete(c.entries, k)
				n++
				break
			}
		}
	}
	pageInvalidationsCounter.WithLabelValues("tag").Add(float64(n))
	return n
}

// InvalidatePaths drops pages whose path (query ignored) equals one of paths.
func (c *Cache) InvalidatePaths(paths ...string) int {
	if len(paths) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[normalizePath(p)] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if _, ok := want[normalizePath(e.Path)]; ok {
			delete(c.entries, k)
			n++
		}
	}
	pageInvalidationsCounter.WithLabelValues("path").Add(float64(n))
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func pathOf(key string) string {
	if u, err := url.Parse(key); err == nil {
		return u.Path
	}
	return key
}

func normalizePath(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// Middleware serves cached GET responses and stores successful ones under
// the tags returned by tagsFor.
func (c *Cache) Middleware(tagsFor func(r *http.Request) []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			key := r.URL.RequestURI()
			if e, ok := c.Get(key); ok {
				pageLookupsCounter.WithLabelValues("hit").Inc()
				w.Header().Set("Content-Type", e.ContentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(e.Status)
				_, _ = w.Write(e.Body)
				return
			}
			pageLookupsCounter.WithLabelValues("miss").Inc()

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)
			if rec.status == http.StatusOK {
				c.Put(key, Entry{
					Status:      rec.status,
					ContentType: w.Header().Get("Content-Type"),
					Body:        rec.buf.Bytes(),
					Path:        r.URL.Path,
					Tags:        tagsFor(r),
				})
			}
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
