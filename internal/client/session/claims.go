package session

import (
	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/golang-jwt/jwt/v5"
)

// claims is what the client reads from an access token. The signature is
// not checked here; the backend verifies tokens on every call.
type claims struct {
	Subject     string
	Email       string
	Role        string
	FirstAccess *bool
	DisplayName string
}

func parseClaims(token string) claims {
	var c claims
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return c
	}
	c.Subject, _ = mc["sub"].(string)
	c.Email, _ = mc["email"].(string)

	if app, ok := mc["app_metadata"].(map[string]any); ok {
		if r, ok := app["role"].(string); ok && validRole(r) {
			c.Role = r
		}
	}
	if c.Role == "" {
		if r, ok := mc["user_role"].(string); ok && validRole(r) {
			c.Role = r
		}
	}
	if um, ok := mc["user_metadata"].(map[string]any); ok {
		if fa, ok := um["first_access"].(bool); ok {
			c.FirstAccess = &fa
		}
		c.DisplayName, _ = um["display_name"].(string)
	}
	return c
}

// userFrom builds a User from backend data. The user record wins over token
// claims; the email address is never consulted for the role.
func userFrom(u *client.User, token string) User {
	c := parseClaims(token)
	out := User{ID: c.Subject, Email: c.Email, DisplayName: c.DisplayName}

	role := c.Role
	if u != nil {
		if u.ID != "" {
			out.ID = u.ID
		}
		if u.Email != "" {
			out.Email = u.Email
		}
		if u.UserMetadata.DisplayName != "" {
			out.DisplayName = u.UserMetadata.DisplayName
		}
		if validRole(u.AppMetadata.Role) {
			role = u.AppMetadata.Role
		}
		if u.UserMetadata.FirstAccess != nil {
			out.FirstAccess = *u.UserMetadata.FirstAccess
		} else if c.FirstAccess != nil {
			out.FirstAccess = *c.FirstAccess
		}
	} else if c.FirstAccess != nil {
		out.FirstAccess = *c.FirstAccess
	}
	out.Role = ParseRole(role)
	if out.DisplayName == "" {
		out.DisplayName = out.Email
	}
	return out
}
