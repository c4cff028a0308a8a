package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/querycache"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// DefaultEnrichmentMaxAge bounds how long last-known product data is shown
// when the product cannot be refetched.
const DefaultEnrichmentMaxAge = 24 * time.Hour

const enrichConcurrency = 4

// ProductKey is the query cache key for a single product.
func ProductKey(id string) string {
	return querycache.Key("/api/v1/public/products", id)
}

// CartContainer holds one client's cart lines. Every mutation writes the
// minimal representation to the store before it becomes visible; a failed
// write leaves the cart as it was.
type CartContainer struct {
	mu    sync.Mutex
	items []domain.CartItem

	store    localstore.Store
	products ProductSource
	queries  *querycache.Cache
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewCartContainer(store localstore.Store, products ProductSource, queries *querycache.Cache, maxAge time.Duration, logger *slog.Logger) *CartContainer {
	if maxAge <= 0 {
		maxAge = DefaultEnrichmentMaxAge
	}
	return &CartContainer{
		store:    store,
		products: products,
		queries:  queries,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger.With("component", "cart"),
	}
}

// Load replaces the in-memory cart with the persisted one. Lines with an
// empty product id, a quantity below 1 or a key that cannot be addressed are
// dropped and duplicates merged.
func (c *CartContainer) Load(ctx context.Context) error {
	var persisted []domain.PersistedCartItem
	if _, err := localstore.GetJSON(ctx, c.store, localstore.KeyCartItems, &persisted); err != nil {
		return fmt.Errorf("loading cart: %w", err)
	}
	items := make([]domain.CartItem, 0, len(persisted))
	for _, p := range persisted {
		if strings.TrimSpace(p.ProductID) == "" || p.Quantity < 1 {
			continue
		}
		item := domain.CartItem{ProductID: p.ProductID, Color: p.Color, Size: p.Size, Quantity: p.Quantity}
		if err := item.Key().Validate(); err != nil {
			c.logger.WarnContext(ctx, "Dropping unaddressable cart line", "error", err)
			continue
		}
		if i := indexOf(items, item.Key()); i >= 0 {
			items[i].Quantity += item.Quantity
			continue
		}
		item.Enrichment = c.cachedEnrichment(item.ProductID)
		items = append(items, item)
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the current lines in insertion order.
func (c *CartContainer) Items() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CartItem(nil), c.items...)
}

func (c *CartContainer) Totals() domain.CartTotals {
	return domain.ComputeTotals(c.Items())
}

// AddItem merges into the line with the same product, color and size, or
// appends a new line.
func (c *CartContainer) AddItem(ctx context.Context, in AddItemInput) (domain.CartItem, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := ValidateStruct(in); err != nil {
		return domain.CartItem{}, err
	}
	key := domain.LineKey{ProductID: in.ProductID, Color: in.Color, Size: in.Size}

	var line domain.CartItem
	err := c.mutate(ctx, "add", func(items []domain.CartItem) ([]domain.CartItem, error) {
		if i := indexOf(items, key); i >= 0 {
			items[i].Quantity += in.Quantity
			line = items[i]
			return items, nil
		}
		line = domain.CartItem{ProductID: in.ProductID, Color: in.Color, Size: in.Size, Quantity: in.Quantity}
		line.Enrichment = c.cachedEnrichment(in.ProductID)
		return append(items, line), nil
	})
	return line, err
}

// UpdateQuantity sets the quantity of the line at key. Zero removes the line.
func (c *CartContainer) UpdateQuantity(ctx context.Context, key domain.LineKey, qty int) error {
	if qty < 0 {
		return domain.NewValidationError("quantity", "must be at least 0")
	}
	if qty == 0 {
		return c.RemoveItem(ctx, key)
	}
	return c.mutate(ctx, "update", func(items []domain.CartItem) ([]domain.CartItem, error) {
		i := indexOf(items, key)
		if i < 0 {
			return nil, domain.ErrLineNotFound
		}
		items[i].Quantity = qty
		return items, nil
	})
}

func (c *CartContainer) RemoveItem(ctx context.Context, key domain.LineKey) error {
	return c.mutate(ctx, "remove", func(items []domain.CartItem) ([]domain.CartItem, error) {
		i := indexOf(items, key)
		if i < 0 {
			return nil, domain.ErrLineNotFound
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// Clear empties the cart and deletes the stored lines.
func (c *CartContainer) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.store.Delete(ctx, localstore.KeyCartItems)
	cartMutationsCounter.WithLabelValues("clear", result(err)).Inc()
	if err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	c.items = nil
	return nil
}

// mutate applies fn to a copy of the lines, persists the result and only
// then swaps it in, all under the container lock.
func (c *CartContainer) mutate(ctx context.Context, op string, fn func([]domain.CartItem) ([]domain.CartItem, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(append([]domain.CartItem(nil), c.items...))
	if err != nil {
		cartMutationsCounter.WithLabelValues(op, "rejected").Inc()
		return err
	}
	persisted := make([]domain.PersistedCartItem, 0, len(next))
	for _, it := range next {
		persisted = append(persisted, it.Persisted())
	}
	if err := localstore.SetJSON(ctx, c.store, localstore.KeyCartItems, persisted); err != nil {
		cartMutationsCounter.WithLabelValues(op, "error").Inc()
		c.logger.ErrorContext(ctx, "Persisting cart failed, change rolled back", "op", op, "error", err)
		return fmt.Errorf("persisting cart: %w", err)
	}
	c.items = next
	cartMutationsCounter.WithLabelValues(op, "ok").Inc()
	return nil
}

// Enrich attaches product display data to every line. It never fails: a
// product that cannot be loaded keeps its last-known data until that data
// is older than the enrichment max age. Cached products past their stale
// window are refreshed in the background by the query cache.
func (c *CartContainer) Enrich(ctx context.Context) []domain.CartItem {
	ids := c.productIDs()
	if len(ids) == 0 {
		return nil
	}

	fetched := make([]*domain.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := querycache.Fetch(gctx, c.queries, ProductKey(id), func(ctx context.Context) (*domain.Product, error) {
				return c.products.GetProduct(ctx, id)
			})
			if err != nil {
				c.logger.WarnContext(ctx, "Enrichment fetch failed", "product_id", id, "error", err)
				return nil
			}
			fetched[i] = p
			return nil
		})
	}
	_ = g.Wait()

	byID := make(map[string]*domain.Product, len(ids))
	for i, id := range ids {
		if fetched[i] != nil {
			byID[id] = fetched[i]
		}
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		it := &c.items[i]
		if p, ok := byID[it.ProductID]; ok {
			it.Enrichment = p.EnrichmentAt(now)
			enrichmentCounter.WithLabelValues("fresh").Inc()
			continue
		}
		if it.IsZero() {
			continue
		}
		if now.Sub(it.EnrichedAt) > c.maxAge {
			it.Enrichment = domain.Enrichment{}
			enrichmentCounter.WithLabelValues("discarded").Inc()
			continue
		}
		enrichmentCounter.WithLabelValues("kept").Inc()
	}
	return append([]domain.CartItem(nil), c.items...)
}

func (c *CartContainer) productIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(c.items))
	ids := make([]string, 0, len(c.items))
	for _, it := range c.items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// cachedEnrichment uses whatever the query cache already holds, without a request.
func (c *CartContainer) cachedEnrichment(productID string) domain.Enrichment {
	if c.queries == nil {
		return domain.Enrichment{}
	}
	p, ok := querycache.Peek[*domain.Product](c.queries, ProductKey(productID))
	if !ok || p == nil {
		return domain.Enrichment{}
	}
	return p.EnrichmentAt(c.now())
}

func indexOf(items []domain.CartItem, key domain.LineKey) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}
