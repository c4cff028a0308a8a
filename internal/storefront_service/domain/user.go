package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Roles derived from the backend's user flags.
const (
	RoleSuperuser = "superuser"
	RoleAdmin     = "admin"
	RoleCustomer  = "customer"
)

// User is the normalized identity record kept in the session.
type User struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	IsAdmin     bool     `json:"is_admin"`
	IsSuperuser bool     `json:"is_superuser"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// FullName joins first and last name, skipping blanks.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasPermission reports whether p is in the user's permission set.
func (u *User) HasPermission(p string) bool {
	for _, have := range u.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// NormalizeFlag coerces the backend's heterogeneous boolean encodings.
//
// true:  bool true; any integer or float kind equal to 1; json.Number "1";
//        the string "1"; the string "true" in any letter case.
// false: everything else, including nil, "0", "false", "yes", 2, and -1.
func NormalizeFlag(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 1
	case int:
		return v == 1
	case int8:
		return v == 1
	case int16:
		return v == 1
	case int32:
		return v == 1
	case int64:
		return v == 1
	case uint:
		return v == 1
	case uint8:
		return v == 1
	case uint16:
		return v == 1
	case uint32:
		return v == 1
	case uint64:
		return v == 1
	case float32:
		return v == 1
	case float64:
		return v == 1
	default:
		return false
	}
}

var ErrUserMissingID = errors.New("user record has no id")

// NormalizeUser builds a User from a loosely typed backend payload.
func NormalizeUser(raw map[string]any) (*User, error) {
	if raw == nil {
		return nil, ErrUserMissingID
	}
	id := stringField(raw, "id")
	if id == "" {
		return nil, ErrUserMissingID
	}
	u := &User{
		ID:          id,
		FirstName:   stringField(raw, "first_name"),
		LastName:    stringField(raw, "last_name"),
		Email:       stringField(raw, "email"),
		Phone:       stringField(raw, "phone"),
		Avatar:      stringField(raw, "avatar"),
		IsAdmin:     NormalizeFlag(raw["is_admin"]),
		IsSuperuser: NormalizeFlag(raw["is_superuser"]),
		Permissions: stringList(raw["permissions"]),
	}
	switch {
	case u.IsSuperuser:
		u.Role = RoleSuperuser
	case u.IsAdmin:
		u.Role = RoleAdmin
	default:
		u.Role = stringField(raw, "role")
		if u.Role == "" {
			u.Role = RoleCustomer
		}
	}
	return u, nil
}

// stringField reads a string or number field; ids arrive as either.
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		if ss, ok := raw.([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
