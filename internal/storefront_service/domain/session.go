package domain

import "time"

// Session is the authoritative auth state of one browser client.
type Session struct {
	User            *User     `json:"user"`
	Token           string    `json:"-"`
	RefreshToken    string    `json:"-"`
	TokenExpiresAt  time.Time `json:"token_expires_at,omitempty"`
	IsAuthenticated bool      `json:"is_authenticated"`
	IsLoading       bool      `json:"is_loading"`
	// PendingPhone is set after an OTP was sent and cleared on verify or logout.
	PendingPhone string `json:"pending_phone,omitempty"`
	// NeedsRegistration is set when the backend verified the OTP for a user
	// that still has to complete the profile step.
	NeedsRegistration bool `json:"needs_registration,omitempty"`
}

// Recompute restores IsAuthenticated == (User != nil && Token != "").
func (s *Session) Recompute() {
	s.IsAuthenticated = s.User != nil && s.Token != ""
}

// Clone returns a copy that shares nothing mutable with s.
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		u.Permissions = append([]string(nil), s.User.Permissions...)
		s.User = &u
	}
	return s
}
