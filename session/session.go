package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Storage keys for the persisted session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserInfo     = "user_info"
)

// Keys lists every key that belongs to a session.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUserInfo}

// Role values the backend assigns to users.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// State is the client's view of whether it holds credentials.
type State string

const (
	Anonymous     State = "anonymous"
	Authenticated State = "authenticated"
)

// UserSummary is the user record returned by the login endpoint.
type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the user has the admin role.
func (u *UserSummary) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session holds the tokens and user summary of the current login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserSummary
}

// Store is a durable key-value store for session data.
// Set must write all given keys or none of them.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

// Save writes all three session keys in a single Set call.
func Save(ctx context.Context, store Store, s Session) error {
	if s.AccessToken == "" || s.RefreshToken == "" {
		return fmt.Errorf("session requires both an access and a refresh token")
	}
	userJSON, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("failed to encode user info: %w", err)
	}
	return store.Set(ctx, map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyUserInfo:     string(userJSON),
	})
}

// SetAccessToken overwrites only the access token key.
func SetAccessToken(ctx context.Context, store Store, token string) error {
	return store.Set(ctx, map[string]string{KeyAccessToken: token})
}

// Load reads the session from the store. Missing keys are left empty.
func Load(ctx context.Context, store Store) (Session, error) {
	var s Session
	var err error
	if s.AccessToken, _, err = store.Get(ctx, KeyAccessToken); err != nil {
		return Session{}, fmt.Errorf("failed to read access token: %w", err)
	}
	if s.RefreshToken, _, err = store.Get(ctx, KeyRefreshToken); err != nil {
		return Session{}, fmt.Errorf("failed to read refresh token: %w", err)
	}
	raw, ok, err := store.Get(ctx, KeyUserInfo)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read user info: %w", err)
	}
	if ok && raw != "" && raw != "null" {
		var user UserSummary
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			// A corrupt user record does not invalidate the tokens.
			log.Warn().Err(err).Msg("Stored user info is not valid JSON")
		} else {
			s.User = &user
		}
	}
	return s, nil
}

// CurrentState reports Authenticated when an access token is stored.
func CurrentState(ctx context.Context, store Store) (State, error) {
	_, ok, err := store.Get(ctx, KeyAccessToken)
	if err != nil {
		return Anonymous, err
	}
	if ok {
		return Authenticated, nil
	}
	return Anonymous, nil
}

// TokenExpiry returns the exp claim of a JWT without verifying its signature.
// The second result is false when the token is not a JWT or has no exp claim.
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Mask shortens a token for log output.
func Mask(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
