package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/pkg/validation"
	"github.com/habedi/uniboard/session"
	"github.com/rs/zerolog/log"
)

// Service manages the login lifecycle on top of a session store.
type Service struct {
	Store session.Store
	API   API
}

// NewService is the constructor for the auth service.
func NewService(store session.Store, api API) *Service {
	return &Service{
		Store: store,
		API:   api,
	}
}

// Login exchanges credentials for a token pair and persists the session.
// The store is only written when the backend accepts the credentials.
func (s *Service) Login(ctx context.Context, username, password string) (*session.UserSummary, error) {
	req := client.LoginRequest{Username: username, Password: password}
	if err := validation.Struct(req); err != nil {
		return nil, &client.APIError{Kind: client.ValidationFailure, Message: err.Error(), Err: err}
	}

	resp, err := s.API.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	user := resp.User
	if err := session.Save(ctx, s.Store, session.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         &user,
	}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("username", user.Username).Str("role", user.Role).Msg("Logged in")
	return &user, nil
}

// Logout clears the local session, then asks the backend to revoke the
// refresh token. A backend failure is logged and ignored. Calling Logout
// without a session is a no-op.
func (s *Service) Logout(ctx context.Context) error {
	refreshToken, ok, err := s.Store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read refresh token before logout")
	}
	if err := s.Store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if !ok || refreshToken == "" {
		log.Debug().Msg("No refresh token stored, skipping backend logout")
		return nil
	}
	if err := s.API.Logout(ctx, refreshToken); err != nil {
		log.Warn().Err(err).Msg("Backend logout failed; local session was cleared anyway")
		return nil
	}
	log.Info().Msg("Logged out")
	return nil
}

// CurrentUser asks the backend who the stored token belongs to.
// It returns nil without an error when no access token is stored.
func (s *Service) CurrentUser(ctx context.Context) (*client.CurrentUser, error) {
	state, err := session.CurrentState(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	if state == session.Anonymous {
		return nil, nil
	}
	return s.API.Me(ctx)
}

// Status describes the stored session without contacting the backend.
type Status struct {
	State session.State
	User  *session.UserSummary
	// Zero when the token is absent or carries no exp claim.
	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time
}

// AccessTokenExpired reports whether the access token's exp claim is in the past.
// The client refreshes such a token on the next request.
func (s Status) AccessTokenExpired(now time.Time) bool {
	return !s.AccessTokenExpiry.IsZero() && !now.Before(s.AccessTokenExpiry)
}

// Status reads the stored session.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	sess, err := session.Load(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	st := &Status{State: session.Anonymous, User: sess.User}
	if sess.AccessToken != "" {
		st.State = session.Authenticated
	}
	if exp, ok := session.TokenExpiry(sess.AccessToken); ok {
		st.AccessTokenExpiry = exp
	}
	if exp, ok := session.TokenExpiry(sess.RefreshToken); ok {
		st.RefreshTokenExpiry = exp
	}
	return st, nil
}
