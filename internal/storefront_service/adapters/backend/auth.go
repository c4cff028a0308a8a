package backend

import (
	"context"
	"net/http"
)

// VerifyResult is the payload of a successful OTP verification or refresh.
type VerifyResult struct {
	User         map[string]any `json:"user"`
	Token        string         `json:"token"`
	RefreshToken string         `json:"refresh_token"`
	IsNewUser    bool           `json:"is_new_user,omitempty"`
}

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// SendOTP asks the backend to text a one-time code to phone.
func (c *Client) SendOTP(ctx context.Context, phone string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   map[string]string{"phone": phone},
	}, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/verify-otp",
		body:   map[string]string{"phone": phone, "code": code},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new token pair. User may be
// absent in the result.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/refresh",
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the raw user record for token.
func (c *Client) Me(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/auth/me", token: token}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Register completes the profile of a user created by OTP verification.
func (c *Client) Register(ctx context.Context, token string, in RegisterInput) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/auth/register", body: in, token: token}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
