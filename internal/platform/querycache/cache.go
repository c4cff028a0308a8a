// Package querycache is the request-keyed cache for backend reads. Entries
// are fresh for StaleTime, served stale (with a background refresh) until
// GCTime, and refetched synchronously after that.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 10 * time.Minute
)

type Options struct {
	Name          string
	StaleTime     time.Duration
	GCTime        time.Duration
	QueryRetry    RetryPolicy
	MutationRetry RetryPolicy
	Now           func() time.Time
	Sleep         Sleeper
	Logger        *slog.Logger
}

type entry struct {
	value       any
	fetchedAt   time.Time
	lastUsed    time.Time
	invalidated bool
}

type Cache struct {
	opts    Options
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]*entry
	links   map[string]map[string]struct{}
	group   singleflight.Group
	bg      sync.WaitGroup
}

func New(opts Options) *Cache {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.GCTime <= 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.QueryRetry.Delay == nil {
		opts.QueryRetry = QueryPolicy
	}
	if opts.MutationRetry.Delay == nil {
		opts.MutationRetry = MutationPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = realSleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		opts:    opts,
		logger:  logger.With("component", "querycache", "cache", opts.Name),
		entries: map[string]*entry{},
		links:   map[string]map[string]struct{}{},
	}
}

// Key builds a request signature from an endpoint and its parameters.
func Key(endpoint string, params ...any) string {
	if len(params) == 0 {
		return endpoint
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, endpoint)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ":")
}

// Fetch returns the cached value for key, loading it with loader when absent
// or expired. A stale value is returned immediately while a refresh runs in
// the background. A loader started here is never aborted by ctx; if ctx ends
// first the caller gets ctx.Err() and the result still lands in the cache.
func Fetch[T any](ctx context.Context, c *Cache, key string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	now := c.opts.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && now.Sub(e.fetchedAt) < c.opts.GCTime {
		if v, typed := e.value.(T); typed {
			e.lastUsed = now
			fresh := !e.invalidated && now.Sub(e.fetchedAt) < c.opts.StaleTime
			c.mu.Unlock()
			if fresh {
				cacheLookupsCounter.WithLabelValues(c.opts.Name, "fresh").Inc()
				return v, nil
			}
			cacheLookupsCounter.WithLabelValues(c.opts.Name, "stale").Inc()
			refreshInBackground(ctx, c, key, loader)
			return v, nil
		}
	}
	c.mu.Unlock()

	cacheLookupsCounter.WithLabelValues(c.opts.Name, "miss").Inc()
	ch := c.group.DoChan(key, func() (any, error) {
		return load(context.WithoutCancel(ctx), c, key, loader)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			cacheLookupsCounter.WithLabelValues(c.opts.Name, "error").Inc()
			return zero, res.Err
		}
		v, typed := res.Val.(T)
		if !typed {
			return zero, fmt.Errorf("querycache: %s holds %T, not the requested type", key, res.Val)
		}
		return v, nil
	}
}

func load[T any](ctx context.Context, c *Cache, key string, loader func(context.Context) (T, error)) (any, error) {
	start := c.opts.Now()
	v, attempts, err := Do(ctx, c.opts.QueryRetry, c.opts.Sleep, loader)
	cacheLoadDurationHist.WithLabelValues(c.opts.Name).Observe(c.opts.Now().Sub(start).Seconds())
	if attempts > 1 {
		cacheRetriesCounter.WithLabelValues(c.opts.Name, "query").Add(float64(attempts - 1))
	}
	if err != nil {
		// Existing entries stay as they are; a failed load never evicts.
		c.logger.WarnContext(ctx, "Loader failed", "key", key, "attempts", attempts, "error", err)
		return nil, err
	}
	now := c.opts.Now()
	c.mu.Lock()
	c.entries[key] = &entry{value: v, fetchedAt: now, lastUsed: now}
	c.mu.Unlock()
	return v, nil
}

func refreshInBackground[T any](ctx context.Context, c *Cache, key string, loader func(context.Context) (T, error)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		<-c.group.DoChan(key, func() (any, error) {
			return load(context.WithoutCancel(ctx), c, key, loader)
		})
	}()
}

// Mutate runs a side-effecting request under the mutation retry budget. The
// result is not cached; callers invalidate affected keys afterwards.
func Mutate[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error)) (T, error) {
	v, attempts, err := Do(ctx, c.opts.MutationRetry, c.opts.Sleep, fn)
	if attempts > 1 {
		cacheRetriesCounter.WithLabelValues(c.opts.Name, "mutation").Add(float64(attempts - 1))
	}
	return v, err
}

// Peek returns the cached value for key regardless of freshness, without loading.
func Peek[T any](c *Cache, key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	v, typed := e.value.(T)
	return v, typed
}

// Set seeds key with v as if it had just been fetched.
func Set[T any](c *Cache, key string, v T) {
	now := c.opts.Now()
	c.mu.Lock()
	c.entries[key] = &entry{value: v, fetchedAt: now, lastUsed: now}
	c.mu.Unlock()
}

// Link ties two keys that hold the same resource, such as a product cached
// under both its slug and its id. Invalidate and Remove reach both.
func (c *Cache) Link(a, b string) {
	if a == b {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		set, ok := c.links[pair[0]]
		if !ok {
			set = map[string]struct{}{}
			c.links[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

// matchesPrefix reports whether key is prefix or one of its sub-keys as
// built by Key. "products:1" covers "products:1:x" but not "products:12".
func matchesPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+":")
}

// matchLocked returns the keys under prefix plus the keys linked to them.
func (c *Cache) matchLocked(prefix string) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range c.entries {
		if matchesPrefix(k, prefix) {
			out[k] = struct{}{}
		}
	}
	for k, linked := range c.links {
		if !matchesPrefix(k, prefix) {
			continue
		}
		out[k] = struct{}{}
		for l := range linked {
			out[l] = struct{}{}
		}
	}
	return out
}

// Invalidate marks every entry under prefix, and every entry linked to one,
// as stale. The data is kept and served until a refresh replaces it.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.matchLocked(prefix) {
		if e, ok := c.entries[k]; ok {
			e.invalidated = true
			n++
		}
	}
	return n
}

// Remove drops every entry under prefix along with the entries linked to them.
func (c *Cache) Remove(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.matchLocked(prefix) {
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			n++
		}
		c.unlinkLocked(k)
	}
	return n
}

func (c *Cache) unlinkLocked(key string) {
	for l := range c.links[key] {
		delete(c.links[l], key)
		if len(c.links[l]) == 0 {
			delete(c.links, l)
		}
	}
	delete(c.links, key)
}

// Sweep drops entries that nobody has read for GCTime.
func (c *Cache) Sweep() int {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.lastUsed) >= c.opts.GCTime {
			delete(c.entries, k)
			c.unlinkLocked(k)
			n++
		}
	}
	return n
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until background refreshes started so far have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.DebugContext(ctx, "Swept unused entries", "count", n)
			}
		}
	}
}
