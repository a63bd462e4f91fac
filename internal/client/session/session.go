// Package session owns the signed-in identity of the process: it signs in,
// signs up and signs out against the auth server, restores the last session
// from the persisted store on start, and notifies subscribers on every
// change.
package session

import (
	"strings"
	"time"
)

// Role is the authorization level the backend grants a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStaff   Role = "staff"
	RoleCitizen Role = "citizen"
)

// ParseRole maps a backend role name to a Role. Unknown or empty names are
// citizens.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleStaff, RoleCitizen:
		return r
	}
	return RoleCitizen
}

func validRole(s string) bool {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin, RoleStaff, RoleCitizen:
		return true
	}
	return false
}

// User is the signed-in account as the client sees it. Role and
// FirstAccess come from backend data only.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	FirstAccess bool   `json:"first_access"`
}

// Session is an authenticated identity with the tokens that prove it.
type Session struct {
	User         User
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
}

// State is what subscribers observe. A nil Session is anonymous.
type State struct {
	Session *Session
}

// Anonymous reports whether nobody is signed in.
func (s State) Anonymous() bool { return s.Session == nil }

// User returns the signed-in user, or nil.
func (s State) User() *User {
	if s.Session == nil {
		return nil
	}
	u := s.Session.User
	return &u
}

// Profile carries the optional data sent with a sign-up. Role is only a
// request; the granted role is whatever the backend reports.
type Profile struct {
	DisplayName string
	Role        Role
}

func (p Profile) data() map[string]any {
	d := map[string]any{}
	if p.DisplayName != "" {
		d["display_name"] = p.DisplayName
	}
	if p.Role != "" {
		d["requested_role"] = string(p.Role)
	}
	return d
}
