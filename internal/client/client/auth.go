package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// AppMetadata is the operator-controlled part of the user record; the
// client reads the role from here.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// UserMetadata is the profile part of the user record.
type UserMetadata struct {
	DisplayName string `json:"display_name,omitempty"`
	FirstAccess *bool  `json:"first_access,omitempty"`
}

// User is the auth server's user record.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	AppMetadata  AppMetadata  `json:"app_metadata"`
	UserMetadata UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AuthResponse is returned by the token and sign-up endpoints. When sign-up
// requires confirmation, only User is set.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Data     any    `json:"data,omitempty"`
}

// UserUpdate changes the signed-in user. Empty fields are left untouched.
type UserUpdate struct {
	Password string `json:"password,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Auth is the subset of the auth server the session layer depends on.
type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, email, password string, data any) (*AuthResponse, error)
	Logout(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	UpdateUser(ctx context.Context, accessToken string, upd UserUpdate) (*User, error)
}

var _ Auth = (*Client)(nil)

// SignInWithPassword runs the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    c.authPath + "/token",
		query:   url.Values{"grant_type": {"password"}},
		body:    credentials{Email: email, Password: password},
		noToken: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp registers an account. data is stored as user metadata. When the
// backend requires email confirmation the response carries no token.
func (c *Client) SignUp(ctx context.Context, email, password string, data any) (*AuthResponse, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    c.authPath + "/signup",
		body:    credentials{Email: email, Password: password, Data: data},
		noToken: true,
	}, nil)
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decode signup: %w", err)
	}
	if out.AccessToken == "" && out.User == nil {
		// confirmation pending: the body is the bare user object
		var u User
		if err := json.Unmarshal(resp.body, &u); err != nil {
			return nil, fmt.Errorf("decode signup user: %w", err)
		}
		if u.ID != "" {
			out.User = &u
		}
	}
	return &out, nil
}

// Logout revokes accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.authPath + "/logout",
		token:  accessToken,
	}, nil)
	return err
}

// GetUser returns the user accessToken belongs to. A rejected token
// matches common.ErrUnauthorized.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   c.authPath + "/user",
		token:  accessToken,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser changes the password and/or user metadata of the token's
// owner.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, upd UserUpdate) (*User, error) {
	var u User
	_, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   c.authPath + "/user",
		token:  accessToken,
		body:   upd,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
