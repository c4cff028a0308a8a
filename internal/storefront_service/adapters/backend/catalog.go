package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

func (c *Client) ListProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductList, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	var out domain.ProductList
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/public/products", query: params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var out domain.Product
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/public/products/" + url.PathEscape(id)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/public/categories"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]domain.Order, error) {
	var out []domain.Order
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/orders", token: token}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, token string, in domain.CreateOrderInput) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/orders", body: in, token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
