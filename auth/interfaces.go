package auth

import (
	"context"

	"github.com/habedi/uniboard/client"
)

// API is the part of the backend the auth service talks to.
// *client.Client satisfies it.
type API interface {
	Login(ctx context.Context, req client.LoginRequest) (*client.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context) (*client.CurrentUser, error)
}

var _ API = (*client.Client)(nil)
