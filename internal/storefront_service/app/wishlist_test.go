package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
	"github.com/banoo-shop/storefront/internal/platform/logger"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

func TestWishlist_ToggleTwiceRestoresMembership(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: localstore.Scoped(localstore.NewMemoryStore(), "w")}
	w := NewWishlistContainer(store, logger.Discard())
	require.NoError(t, w.Add(ctx, "p9"))

	for _, id := range []string{"p1", "p9"} {
		before := w.Contains(id)
		_, err := w.Toggle(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, before, w.Contains(id))
		_, err = w.Toggle(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, w.Contains(id))
	}
}

func TestWishlist_TrimsIDsBeforeStoring(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "w")
	w := NewWishlistContainer(store, logger.Discard())

	added, err := w.Toggle(ctx, " 42 ")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, w.Contains("42"))
	require.NoError(t, w.Add(ctx, "42"))
	assert.Equal(t, []string{"42"}, w.ProductIDs())

	var stored []string
	_, err = localstore.GetJSON(ctx, store, localstore.KeyWishlistProductIDs, &stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, stored)

	reloaded := NewWishlistContainer(store, logger.Discard())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, w.ProductIDs(), reloaded.ProductIDs())

	added, err = w.Toggle(ctx, "42 ")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Empty(t, w.ProductIDs())
}

func TestWishlist_AddIsIdempotentAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := localstore.Scoped(localstore.NewMemoryStore(), "w")
	w := NewWishlistContainer(store, logger.Discard())

	require.NoError(t, w.Add(ctx, "p1"))
	require.NoError(t, w.Add(ctx, "p1"))
	require.NoError(t, w.Add(ctx, "p2"))
	assert.Equal(t, []string{"p1", "p2"}, w.ProductIDs())

	reloaded := NewWishlistContainer(store, logger.Discard())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"p1", "p2"}, reloaded.ProductIDs())

	require.NoError(t, reloaded.Remove(ctx, "p1"))
	assert.Equal(t, []string{"p2"}, reloaded.ProductIDs())
}

func TestWishlist_RollbackAndValidation(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: localstore.NewMemoryStore()}
	w := NewWishlistContainer(store, logger.Discard())

	var verr *domain.ValidationError
	_, err := w.Toggle(ctx, " ")
	require.ErrorAs(t, err, &verr)

	store.setFailing(true)
	added, err := w.Toggle(ctx, "p1")
	require.ErrorIs(t, err, errDiskFull)
	assert.False(t, added)
	assert.False(t, w.Contains("p1"))
}
