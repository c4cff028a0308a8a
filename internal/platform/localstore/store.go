// Package localstore is the durable per-client key/value storage that backs
// cart, wishlist and auth token persistence. Every client gets its own
// namespace; values are small JSON documents.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Keys used by the storefront containers. Each concern has its own key so a
// logout never touches the cart and vice versa.
const (
	KeyCartItems          = "cart:items"
	KeyWishlistProductIDs = "wishlist:product_ids"
	KeyAuthToken          = "auth:token"
	KeyAuthRefreshToken   = "auth:refresh_token"
)

var ErrEmptyKey = errors.New("localstore: empty key")

// Store is the minimal persistence contract. Get reports found=false for a
// missing key rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Closer is implemented by backends holding connections or file handles.
type Closer interface {
	Close() error
}

type scoped struct {
	inner  Store
	prefix string
}

// Scoped returns a view of store where every key lives under client:<namespace>:.
func Scoped(store Store, namespace string) Store {
	return &scoped{inner: store, prefix: "client:" + namespace + ":"}
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return ErrEmptyKey
		}
		full = append(full, s.prefix+k)
	}
	return s.inner.Delete(ctx, full...)
}

// GetJSON decodes the value under key into out. found is false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// GetString and SetString store plain strings (tokens) as JSON strings.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	var v string
	if _, err := GetJSON(ctx, s, key, &v); err != nil {
		return "", err
	}
	return v, nil
}

func SetString(ctx context.Context, s Store, key, v string) error {
	if strings.TrimSpace(v) == "" {
		return s.Delete(ctx, key)
	}
	return SetJSON(ctx, s, key, v)
}
