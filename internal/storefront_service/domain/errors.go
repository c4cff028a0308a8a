package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidOTP means the code was wrong; the user should retry.
	ErrInvalidOTP = errors.New("invalid otp code")
	// ErrOTPExpired means the code timed out; the user should request a new one.
	ErrOTPExpired = errors.New("otp code expired")
	// ErrRefreshRejected means the refresh token is no longer accepted and the session was reset.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrOTPSendFailed means the backend did not accept the login (send OTP) request.
	ErrOTPSendFailed = errors.New("could not send otp")
	// ErrNotAuthenticated is returned by operations that need a logged-in session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRequestInFlight rejects a duplicate submit while the first is still running.
	ErrRequestInFlight = errors.New("request already in progress")
	// ErrLineNotFound is returned when a cart line key does not exist.
	ErrLineNotFound = errors.New("cart line not found")
)

// AuthError carries a user-displayable message alongside one of the auth
// sentinels above, so callers can both show it and branch with errors.Is.
type AuthError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Kind.Error() + ": " + e.Message
	}
	return e.Kind.Error()
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NewAuthError(kind error, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: cause}
}

// ValidationError reports malformed input caught before any network call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RevalidationError is logged by the revalidation dispatcher and never returned to users.
type RevalidationError struct {
	Tags   []string
	Paths  []string
	Status int
	Err    error
}

func (e *RevalidationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("revalidation failed with status %d (tags=%v paths=%v)", e.Status, e.Tags, e.Paths)
	}
	return fmt.Sprintf("revalidation failed (tags=%v paths=%v): %v", e.Tags, e.Paths, e.Err)
}

func (e *RevalidationError) Unwrap() error { return e.Err }
