package backend

import (
	"fmt"
)

// APIError is a structured non-2xx (or success:false) backend response.
type APIError struct {
	Endpoint string
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %s: status %d, code %s: %s", e.Endpoint, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// HTTPStatus lets the query cache classify the error without importing this package.
func (e *APIError) HTTPStatus() int { return e.Status }

// IsClientError reports a 4xx response.
func (e *APIError) IsClientError() bool { return e.Status >= 400 && e.Status < 500 }

// NetworkError is a transport-level failure: the request never got a usable response.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend %s: network error: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
