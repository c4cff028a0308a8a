package http

import (
	"context"

	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// StorefrontBackend is the catalog and order slice of the REST backend.
type StorefrontBackend interface {
	ListProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductList, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListOrders(ctx context.Context, token string) ([]domain.Order, error)
	CreateOrder(ctx context.Context, token string, in domain.CreateOrderInput) (*domain.Order, error)
}

// Revalidator tells the rendering server which pages went stale.
type Revalidator interface {
	Revalidate(ctx context.Context, req revalidation.Request)
	RevalidateProduct(ctx context.Context, slug string, extra revalidation.Request)
	Go(ctx context.Context, req revalidation.Request)
}

// Publisher broadcasts revalidations to other replicas.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

var (
	_ StorefrontBackend = (*backend.Client)(nil)
	_ Revalidator       = (*revalidation.Dispatcher)(nil)
)
