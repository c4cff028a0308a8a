package http

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

type LoginRequest struct {
	Phone string `json:"phone"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=99"`
}

type WishlistToggleRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

type CreateOrderRequest struct {
	Address string `json:"address" validate:"required,min=10,max=500"`
	Note    string `json:"note,omitempty" validate:"max=500"`
}

// SessionResponse is the public view of a session; tokens stay server side.
type SessionResponse struct {
	domain.Session
}

type CartResponse struct {
	Items  []domain.CartItem `json:"items"`
	Totals domain.CartTotals `json:"totals"`
}

type WishlistResponse struct {
	ProductIDs []string `json:"product_ids"`
}

type NotificationsResponse struct {
	Items  []domain.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// StringOrSlice accepts either a JSON string or an array of strings.
type StringOrSlice []string

func (s *StringOrSlice) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = StringOrSlice{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// RevalidateRequest is the body of POST /api/revalidate.
type RevalidateRequest struct {
	Path StringOrSlice `json:"path,omitempty"`
	Tag  string        `json:"tag,omitempty"`
	Tags []string      `json:"tags,omitempty"`
}

type RevalidateResponse struct {
	Revalidated bool  `json:"revalidated"`
	Now         int64 `json:"now"`
}

type RevalidateErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RevalidatedEvent is broadcast to other replicas after a revalidation.
type RevalidatedEvent struct {
	Origin string    `json:"origin"`
	Tags   []string  `json:"tags,omitempty"`
	Paths  []string  `json:"paths,omitempty"`
	At     time.Time `json:"at"`
}
