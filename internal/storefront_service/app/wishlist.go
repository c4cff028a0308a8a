package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// WishlistContainer is a persisted set of product ids.
type WishlistContainer struct {
	mu     sync.Mutex
	ids    []string
	store  localstore.Store
	logger *slog.Logger
}

func NewWishlistContainer(store localstore.Store, logger *slog.Logger) *WishlistContainer {
	return &WishlistContainer{store: store, logger: logger.With("component", "wishlist")}
}

// Load reads the stored ids, dropping blanks and duplicates.
func (w *WishlistContainer) Load(ctx context.Context) error {
	var stored []string
	if _, err := localstore.GetJSON(ctx, w.store, localstore.KeyWishlistProductIDs, &stored); err != nil {
		return fmt.Errorf("loading wishlist: %w", err)
	}
	ids := make([]string, 0, len(stored))
	for _, id := range stored {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	w.mu.Lock()
	w.ids = ids
	w.mu.Unlock()
	return nil
}

func (w *WishlistContainer) ProductIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.ids...)
}

func (w *WishlistContainer) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Contains(w.ids, strings.TrimSpace(id))
}

// Toggle flips membership of id and reports whether it is now present.
func (w *WishlistContainer) Toggle(ctx context.Context, id string) (bool, error) {
	var added bool
	err := w.mutate(ctx, "wishlist_toggle", id, func(ids []string, id string) []string {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1)
		}
		added = true
		return append(ids, id)
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Add is idempotent.
func (w *WishlistContainer) Add(ctx context.Context, id string) error {
	return w.mutate(ctx, "wishlist_add", id, func(ids []string, id string) []string {
		if slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	})
}

func (w *WishlistContainer) Remove(ctx context.Context, id string) error {
	return w.mutate(ctx, "wishlist_remove", id, func(ids []string, id string) []string {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1)
		}
		return ids
	})
}

func (w *WishlistContainer) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.store.Delete(ctx, localstore.KeyWishlistProductIDs); err != nil {
		return fmt.Errorf("clearing wishlist: %w", err)
	}
	w.ids = nil
	return nil
}

// mutate hands fn the trimmed id, the same form Load produces.
func (w *WishlistContainer) mutate(ctx context.Context, op, id string, fn func(ids []string, id string) []string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.NewValidationError("productId", "is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	next := fn(append([]string(nil), w.ids...), id)
	if err := localstore.SetJSON(ctx, w.store, localstore.KeyWishlistProductIDs, next); err != nil {
		cartMutationsCounter.WithLabelValues(op, "error").Inc()
		w.logger.ErrorContext(ctx, "Persisting wishlist failed, change rolled back", "op", op, "error", err)
		return fmt.Errorf("persisting wishlist: %w", err)
	}
	w.ids = next
	cartMutationsCounter.WithLabelValues(op, "ok").Inc()
	return nil
}
