package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/habedi/uniboard/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_WritesAllKeys(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	err := session.Save(ctx, store, session.Session{
		AccessToken:  "t1",
		RefreshToken: "r1",
		User:         &session.UserSummary{ID: 1, Username: "admin_user", Role: session.RoleAdmin},
	})
	require.NoError(t, err)

	snap := store.Snapshot()
	assert.Equal(t, "t1", snap[session.KeyAccessToken])
	assert.Equal(t, "r1", snap[session.KeyRefreshToken])
	assert.Contains(t, snap[session.KeyUserInfo], `"role":"admin"`)
}

func TestSave_RejectsPartialSession(t *testing.T) {
	store := session.NewMemoryStore()
	err := session.Save(context.Background(), store, session.Session{AccessToken: "t1"})
	require.Error(t, err)
	assert.Empty(t, store.Snapshot())
}

func TestLoad_RoundTripsUser(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, session.Save(ctx, store, session.Session{
		AccessToken:  "t1",
		RefreshToken: "r1",
		User:         &session.UserSummary{ID: 7, Username: "kim", FullName: "Kim", Role: session.RoleUser},
	}))

	s, err := session.Load(ctx, store)
	require.NoError(t, err)
	require.NotNil(t, s.User)
	assert.Equal(t, 7, s.User.ID)
	assert.False(t, s.User.IsAdmin())
}

func TestLoad_IgnoresCorruptUserInfo(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(ctx, map[string]string{
		session.KeyAccessToken: "t1",
		session.KeyUserInfo:    "{not json",
	}))

	s, err := session.Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.AccessToken)
	assert.Nil(t, s.User)
}

func TestSetAccessToken_LeavesOtherKeys(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, session.Save(ctx, store, session.Session{
		AccessToken: "t1", RefreshToken: "r1", User: &session.UserSummary{ID: 1},
	}))
	before := store.Snapshot()

	require.NoError(t, session.SetAccessToken(ctx, store, "t2"))

	after := store.Snapshot()
	assert.Equal(t, "t2", after[session.KeyAccessToken])
	assert.Equal(t, before[session.KeyRefreshToken], after[session.KeyRefreshToken])
	assert.Equal(t, before[session.KeyUserInfo], after[session.KeyUserInfo])
}

func TestCurrentState(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	state, err := session.CurrentState(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, session.Anonymous, state)

	require.NoError(t, session.SetAccessToken(ctx, store, "t1"))
	state, err = session.CurrentState(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, session.Authenticated, state)

	require.NoError(t, store.Clear(ctx))
	state, err = session.CurrentState(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, session.Anonymous, state)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := session.TokenExpiry(signed)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = session.TokenExpiry("opaque-token")
	assert.False(t, ok)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "***", session.Mask("short"))
	assert.Equal(t, "abcd...wxyz", session.Mask("abcdefghijklmnopqrstuvwxyz"))
}
