package db_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/db"
	"github.com/habedi/uniboard/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowRefreshServer rejects every protected request and holds refresh
// requests until the caller goes away. refreshing receives one value per
// refresh request that reached the server.
func slowRefreshServer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()
	refreshing := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == client.RefreshPath {
			refreshing <- struct{}{}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Second):
			}
			_ = json.NewEncoder(w).Encode(client.RefreshResponse{Access: "t2"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Given token not valid for any token type"})
	}))
	t.Cleanup(server.Close)
	return server, refreshing
}

func TestSessionStore_ExpiryOnAbandonedRefresh(t *testing.T) {
	tests := []struct {
		name   string
		abort  func(cancel context.CancelFunc, refreshing <-chan struct{})
		parent func() (context.Context, context.CancelFunc)
	}{
		{
			name: "deadline exceeded",
			parent: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
			abort: func(context.CancelFunc, <-chan struct{}) {},
		},
		{
			name: "cancelled",
			parent: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			abort: func(cancel context.CancelFunc, refreshing <-chan struct{}) {
				go func() {
					<-refreshing
					cancel()
				}()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, refreshing := slowRefreshServer(t)
			store := db.NewSessionStore(setupTestDBForSession(t))
			require.NoError(t, session.Save(context.Background(), store, session.Session{
				AccessToken:  "t1",
				RefreshToken: "r1",
				User:         &session.UserSummary{ID: 1, Username: "admin_user", Role: "admin"},
			}))

			expired := 0
			c, err := client.New(server.URL, store, client.WithSessionExpiredHandler(func(error) { expired++ }))
			require.NoError(t, err)

			ctx, cancel := tt.parent()
			defer cancel()
			tt.abort(cancel, refreshing)

			_, err = c.Request(ctx, http.MethodGet, "/api/dashboard/kpi/", nil, nil)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, client.Unauthenticated, apiErr.Kind)
			assert.True(t, apiErr.SessionCleared)
			assert.Equal(t, 1, expired)

			for _, key := range session.Keys {
				_, ok, err := store.Get(context.Background(), key)
				require.NoError(t, err)
				assert.False(t, ok, "key %q should be removed", key)
			}
		})
	}
}
