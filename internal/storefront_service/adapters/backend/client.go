package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// envelope is the response wrapper every backend endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// Client talks to the storefront REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "storefront-backend",
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 20
			},
			// Client errors are the caller's fault, not the backend's health.
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					return apiErr.IsClientError()
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Backend circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger.With("component", "backend_client"),
	}
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	token  string
}

// do sends req and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := req.method + " " + req.path
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, endpoint, req, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, endpoint string, req request, out any) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request for %s: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}

	c.logger.DebugContext(ctx, "Sending backend request", "endpoint", endpoint)
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed", "endpoint", endpoint, "error", err)
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("reading body (status %d): %w", httpResp.StatusCode, err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || decodeErr != nil || !env.Success {
		apiErr := &APIError{Endpoint: endpoint, Status: httpResp.StatusCode, Message: http.StatusText(httpResp.StatusCode)}
		switch {
		case decodeErr == nil && env.Error != nil:
			apiErr.Message = env.Error.Message
			apiErr.Code = env.Error.Code
		case decodeErr != nil && len(raw) > 0 && len(raw) < 200:
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		// A 2xx that says success:false is still a failure; treat it as a bad request.
		if apiErr.Status >= 200 && apiErr.Status < 300 {
			apiErr.Status = http.StatusUnprocessableEntity
			if decodeErr != nil {
				apiErr.Status = http.StatusBadGateway
				apiErr.Message = "malformed backend response"
			}
		}
		c.logger.WarnContext(ctx, "Backend returned an error", "endpoint", endpoint, "status", apiErr.Status, "code", apiErr.Code, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Endpoint: endpoint, Status: http.StatusBadGateway, Message: "malformed data: " + err.Error()}
	}
	return nil
}
