package apiclient

import (
	"context"
	"net/http"
)

// AuthResponse is what the auth provider returns on login and registration.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// User is the authenticated caller as reported by /api/auth/me.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", credentials{Email: email, Password: password})
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", credentials{Name: name, Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, path string, creds credentials) (*AuthResponse, error) {
	body, err := encode(creds)
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, request{
		method: http.MethodPost,
		url:    join(c.authURL, path, nil),
		body:   body,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, request{
		method: http.MethodGet,
		url:    join(c.authURL, "/api/auth/me", nil),
		token:  token,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return &out, nil
}
