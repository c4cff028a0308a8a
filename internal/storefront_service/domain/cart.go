package domain

import (
	"fmt"
	"strings"
	"time"
)

// LineKey identifies a cart line. The same product may appear on several
// lines when color or size differ.
type LineKey struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
}

// LineKeySeparator joins the key parts in LineKey.String. No part may
// contain it.
const LineKeySeparator = "|"

// String renders the key as productId|color|size, the form used in URLs.
func (k LineKey) String() string {
	return k.ProductID + LineKeySeparator + k.Color + LineKeySeparator + k.Size
}

// Validate reports whether the key survives a String/ParseLineKey round trip.
func (k LineKey) Validate() error {
	if k.ProductID == "" {
		return fmt.Errorf("cart line key has no product id")
	}
	for _, part := range []string{k.ProductID, k.Color, k.Size} {
		if strings.Contains(part, LineKeySeparator) {
			return fmt.Errorf("cart line key part %q contains %q", part, LineKeySeparator)
		}
	}
	return nil
}

// ParseLineKey is the inverse of LineKey.String.
func ParseLineKey(s string) (LineKey, error) {
	parts := strings.Split(s, LineKeySeparator)
	if len(parts) != 3 || parts[0] == "" {
		return LineKey{}, fmt.Errorf("malformed cart line key %q", s)
	}
	return LineKey{ProductID: parts[0], Color: parts[1], Size: parts[2]}, nil
}

// PersistedCartItem is the minimal form written to the local store.
type PersistedCartItem struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Enrichment is the last-known product display data for a line.
type Enrichment struct {
	Name       string    `json:"name,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Image      string    `json:"image,omitempty"`
	Discount   float64   `json:"discount,omitempty"`
	Slug       string    `json:"slug,omitempty"`
	EnrichedAt time.Time `json:"enrichedAt,omitempty"`
}

// IsZero reports whether no product data has been attached yet.
func (e Enrichment) IsZero() bool {
	return e.EnrichedAt.IsZero()
}

// CartItem is the in-memory line.
type CartItem struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Enrichment
}

func (i CartItem) Key() LineKey {
	return LineKey{ProductID: i.ProductID, Color: i.Color, Size: i.Size}
}

// Persisted drops the enrichment fields.
func (i CartItem) Persisted() PersistedCartItem {
	return PersistedCartItem{ProductID: i.ProductID, Color: i.Color, Size: i.Size, Quantity: i.Quantity}
}

// UnitPrice applies the percentage discount to the price.
func (i CartItem) UnitPrice() float64 {
	if i.Discount <= 0 || i.Discount >= 100 {
		return i.Price
	}
	return i.Price * (100 - i.Discount) / 100
}

// CartTotals summarises the enriched lines. Lines without a known price
// count toward Quantity but not Subtotal.
type CartTotals struct {
	Lines    int     `json:"lines"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
	Unpriced int     `json:"unpriced"`
}

func ComputeTotals(items []CartItem) CartTotals {
	var t CartTotals
	for _, it := range items {
		t.Lines++
		t.Quantity += it.Quantity
		if it.IsZero() {
			t.Unpriced++
			continue
		}
		t.Subtotal += it.UnitPrice() * float64(it.Quantity)
	}
	return t
}
