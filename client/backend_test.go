package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/session"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal stand-in for the dashboard API.
// validAccess is the only access token protected routes accept.
type fakeBackend struct {
	t *testing.T

	mu           sync.Mutex
	validAccess  string
	validRefresh string
	nextAccess   string
	refreshCode  int // status returned by the refresh endpoint when != 0
	authHeaders  []string
	requestIDs   []string

	refreshCalls atomic.Int32
	protected    atomic.Int32
	logoutCalls  atomic.Int32

	routes map[string]http.HandlerFunc
	server *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:            t,
		validAccess:  "t2",
		validRefresh: "r1",
		nextAccess:   "t2",
		routes:       map[string]http.HandlerFunc{},
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) URL() string { return b.server.URL }

func (b *fakeBackend) handle(path string, h http.HandlerFunc) { b.routes[path] = h }

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case client.RefreshPath:
		b.refreshCalls.Add(1)
		var req client.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		code, valid, next := b.refreshCode, b.validRefresh, b.nextAccess
		if code == 0 && req.Refresh == valid {
			b.validAccess = next
		}
		b.mu.Unlock()
		if code != 0 {
			writeJSON(w, code, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		if r.Header.Get("Authorization") != "" {
			b.t.Errorf("refresh request must not carry an Authorization header")
		}
		if req.Refresh != valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, client.RefreshResponse{Access: next})
		return
	case client.LogoutPath:
		b.logoutCalls.Add(1)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h, ok := b.routes[r.URL.Path]; ok {
		h(w, r)
		return
	}

	// Every other path is a protected resource.
	b.protected.Add(1)
	b.mu.Lock()
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
	b.requestIDs = append(b.requestIDs, r.Header.Get("X-Request-ID"))
	valid := b.validAccess
	b.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path, "query": r.URL.RawQuery})
}

func (b *fakeBackend) headers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// storeWith returns a MemoryStore holding a full session.
func storeWith(t *testing.T, access, refresh string) *session.MemoryStore {
	t.Helper()
	store := session.NewMemoryStore()
	values := map[string]string{session.KeyUserInfo: `{"id":1,"username":"admin_user","role":"admin"}`}
	if access != "" {
		values[session.KeyAccessToken] = access
	}
	if refresh != "" {
		values[session.KeyRefreshToken] = refresh
	}
	require.NoError(t, store.Set(context.Background(), values))
	return store
}

func newTestClient(t *testing.T, baseURL string, store session.Store, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New(baseURL, store, opts...)
	require.NoError(t, err)
	return c
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
