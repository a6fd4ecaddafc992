package api

import (
	"context"
	"errors"
	"net/http"

	"nelfy/internal/core"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	ReferralCode string `json:"referralCode,omitempty" validate:"omitempty,alphanum,max=32"`
}

// AuthResponse is the answer of both auth endpoints.
type AuthResponse struct {
	Token string    `json:"token"`
	Type  string    `json:"type"`
	User  core.User `json:"user"`
}

// ErrInvalidCredentials is returned by Login when the backend rejects the
// email and password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "", http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		// A 401 here is a wrong password, not an expired session.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return AuthResponse{}, &credentialsError{apiErr}
		}
		return AuthResponse{}, err
	}
	out.User.Role = out.User.Role.Normalize()
	return out, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, "", http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return AuthResponse{}, err
	}
	out.User.Role = out.User.Role.Normalize()
	return out, nil
}

type credentialsError struct {
	*APIError
}

func (e *credentialsError) Unwrap() error { return ErrInvalidCredentials }
