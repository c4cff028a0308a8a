package app

import (
	"context"

	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/backend"
	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// AuthBackend is the slice of the REST backend the session container uses.
type AuthBackend interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (*backend.VerifyResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*backend.VerifyResult, error)
	Me(ctx context.Context, token string) (map[string]any, error)
	Register(ctx context.Context, token string, in backend.RegisterInput) (map[string]any, error)
}

// ProductSource loads a single product for cart enrichment.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

var (
	_ AuthBackend   = (*backend.Client)(nil)
	_ ProductSource = (*backend.Client)(nil)
)
